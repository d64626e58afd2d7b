package dispatchapi

import (
	"strings"
	"time"

	"github.com/shivam13669/CRMManagementt-sub003/internal/domain/entities"
)

type forwardBody struct {
	HospitalID int64 `json:"hospitalId"`
}

// dispatchRequestDTO is the backend's flat wire shape of a request
type dispatchRequestDTO struct {
	ID                    int64      `json:"id"`
	Status                string     `json:"status"`
	Priority              string     `json:"priority"`
	EmergencyType         string     `json:"emergency_type"`
	PickupLocation        string     `json:"pickup_location"`
	PickupLatitude        *float64   `json:"pickup_latitude"`
	PickupLongitude       *float64   `json:"pickup_longitude"`
	DestinationAddress    *string    `json:"destination_address"`
	PatientName           string     `json:"patient_name"`
	PatientPhone          string     `json:"patient_phone"`
	PatientCondition      string     `json:"patient_condition"`
	IsRead                bool       `json:"is_read"`
	ForwardedToHospitalID *int64     `json:"forwarded_to_hospital_id"`
	HospitalName          string     `json:"hospital_name"`
	HospitalAddress       string     `json:"hospital_address"`
	HospitalResponse      string     `json:"hospital_response"`
	HospitalResponseNotes string     `json:"hospital_response_notes"`
	HospitalResponseDate  *time.Time `json:"hospital_response_date"`
	AmbulanceRegistration string     `json:"ambulance_registration"`
	AmbulanceType         string     `json:"ambulance_type"`
	DriverName            string     `json:"driver_name"`
	DriverPhone           string     `json:"driver_phone"`
	CustomerState         string     `json:"customer_state"`
	OwnerState            string     `json:"owner_state"`
	CreatedAt             time.Time  `json:"created_at"`
}

func (d dispatchRequestDTO) toEntity() entities.DispatchRequest {
	req := entities.DispatchRequest{
		ID:            d.ID,
		Status:        entities.RequestStatus(strings.ToLower(strings.TrimSpace(d.Status))),
		Priority:      entities.Priority(strings.ToLower(strings.TrimSpace(d.Priority))),
		EmergencyType: d.EmergencyType,
		Patient: entities.PatientInfo{
			Name:           d.PatientName,
			Phone:          d.PatientPhone,
			ConditionNotes: d.PatientCondition,
		},
		IsRead:     d.IsRead,
		OwnerState: d.OwnerState,
		CreatedAt:  d.CreatedAt,
	}
	if req.OwnerState == "" {
		req.OwnerState = d.CustomerState
	}
	if !req.Priority.Valid() {
		req.Priority = entities.PriorityNormal
	}

	if d.PickupLatitude != nil && d.PickupLongitude != nil {
		req.Pickup = entities.CoordinatePickup(*d.PickupLatitude, *d.PickupLongitude)
	} else {
		req.Pickup = entities.ParsePickupLocation(d.PickupLocation)
	}

	if d.DestinationAddress != nil && strings.TrimSpace(*d.DestinationAddress) != "" {
		dest := *d.DestinationAddress
		req.DestinationAddress = &dest
	}

	if d.ForwardedToHospitalID != nil {
		req.Forward = &entities.Forward{
			HospitalID:      *d.ForwardedToHospitalID,
			HospitalName:    d.HospitalName,
			HospitalAddress: d.HospitalAddress,
			Response:        entities.ForwardResponse(strings.ToLower(d.HospitalResponse)),
			ResponseNotes:   d.HospitalResponseNotes,
			RespondedAt:     d.HospitalResponseDate,
		}
	}

	if d.AmbulanceRegistration != "" {
		req.AssignedAmbulance = &entities.AssignedAmbulance{
			Registration: d.AmbulanceRegistration,
			Type:         d.AmbulanceType,
			DriverName:   d.DriverName,
			DriverPhone:  d.DriverPhone,
		}
	}

	req.Normalize()
	return req
}

type hospitalDTO struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Address        string `json:"address"`
	State          string `json:"state"`
	AmbulanceCount int    `json:"ambulance_count"`
}

func (d hospitalDTO) toEntity() entities.Hospital {
	return entities.Hospital{
		ID:             d.ID,
		Name:           d.Name,
		Address:        d.Address,
		State:          d.State,
		AmbulanceCount: d.AmbulanceCount,
	}
}
