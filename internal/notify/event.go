package notify

import "fmt"

// Event identifies an asynchronous notification raised by the core.
type Event int

const (
	EventNodeConnected Event = iota + 1
	EventNodeDisconnected
	EventSafetyCPUConnected
	EventSafetyCPUDisconnected
	EventBMSDataReady
	EventPMSDataReady
	EventEMSDataReady
	EventDuplicateMeasurement
	EventLateMeasurement
	EventDroppedMeasurement
	EventInsufficientBuffer
	EventTransmitExpired
	EventSCLValidationError
	EventFaultReport
)

// String returns a human-readable name for the event
func (e Event) String() string {
	switch e {
	case EventNodeConnected:
		return "NodeConnected"
	case EventNodeDisconnected:
		return "NodeDisconnected"
	case EventSafetyCPUConnected:
		return "SafetyCPUConnected"
	case EventSafetyCPUDisconnected:
		return "SafetyCPUDisconnected"
	case EventBMSDataReady:
		return "BMSDataReady"
	case EventPMSDataReady:
		return "PMSDataReady"
	case EventEMSDataReady:
		return "EMSDataReady"
	case EventDuplicateMeasurement:
		return "DuplicateMeasurement"
	case EventLateMeasurement:
		return "LateMeasurement"
	case EventDroppedMeasurement:
		return "DroppedMeasurement"
	case EventInsufficientBuffer:
		return "InsufficientBuffer"
	case EventTransmitExpired:
		return "TransmitExpired"
	case EventSCLValidationError:
		return "SCLValidationError"
	case EventFaultReport:
		return "FaultReport"
	default:
		return fmt.Sprintf("Event(%d)", int(e))
	}
}

// API tags the high-level call a completion belongs to.
type API int

const (
	APINone API = iota
	APIConnect
	APIConfigureCellBalancing
	APIGetCellBalancingStatus
)

// String returns a human-readable name for the API tag
func (a API) String() string {
	switch a {
	case APINone:
		return "None"
	case APIConnect:
		return "Connect"
	case APIConfigureCellBalancing:
		return "ConfigureCellBalancing"
	case APIGetCellBalancingStatus:
		return "GetCellBalancingStatus"
	default:
		return fmt.Sprintf("API(%d)", int(a))
	}
}

// NodeEvent is the payload of connect/disconnect events.
type NodeEvent struct {
	DeviceID uint8
}

// ValidationError is the payload of EventSCLValidationError.
type ValidationError struct {
	DeviceID uint8
	Reason   string
}

// MeasurementRejection is the payload of duplicate/late/dropped events.
type MeasurementRejection struct {
	SensorType string
	DeviceID   uint8
	Sequence   uint8
	Reason     string
}

// TransmitExpired is the payload of EventTransmitExpired.
type TransmitExpired struct {
	API    API
	Target uint8
}

// FaultReport is the payload of EventFaultReport.
type FaultReport struct {
	DeviceID uint8
	Data     []byte
}
