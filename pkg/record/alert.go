package record

import "fmt"

// AlertLevel is the alert severity.
type AlertLevel uint8

// Alert levels.
const (
	AlertLevelWarning AlertLevel = 1
	AlertLevelFatal   AlertLevel = 2
)

// AlertDescription identifies the alert.
type AlertDescription uint8

// Alert descriptions.
const (
	AlertCloseNotify            AlertDescription = 0
	AlertUnexpectedMessage      AlertDescription = 10
	AlertBadRecordMAC           AlertDescription = 20
	AlertRecordOverflow         AlertDescription = 22
	AlertHandshakeFailure       AlertDescription = 40
	AlertBadCertificate         AlertDescription = 42
	AlertUnsupportedCertificate AlertDescription = 43
	AlertIllegalParameter       AlertDescription = 47
	AlertUnknownCA              AlertDescription = 48
	AlertDecodeError            AlertDescription = 50
	AlertDecryptError           AlertDescription = 51
	AlertProtocolVersion        AlertDescription = 70
	AlertInternalError          AlertDescription = 80
	AlertCertificateRequired    AlertDescription = 116
)

var alertNames = map[AlertDescription]string{
	AlertCloseNotify:            "close_notify",
	AlertUnexpectedMessage:      "unexpected_message",
	AlertBadRecordMAC:           "bad_record_mac",
	AlertRecordOverflow:         "record_overflow",
	AlertHandshakeFailure:       "handshake_failure",
	AlertBadCertificate:         "bad_certificate",
	AlertUnsupportedCertificate: "unsupported_certificate",
	AlertIllegalParameter:       "illegal_parameter",
	AlertUnknownCA:              "unknown_ca",
	AlertDecodeError:            "decode_error",
	AlertDecryptError:           "decrypt_error",
	AlertProtocolVersion:        "protocol_version",
	AlertInternalError:          "internal_error",
	AlertCertificateRequired:    "certificate_required",
}

// String returns the alert description name.
func (d AlertDescription) String() string {
	if name, ok := alertNames[d]; ok {
		return name
	}
	return fmt.Sprintf("alert(%d)", uint8(d))
}

// Alert is an alert record body. A received Alert is returned as an error.
type Alert struct {
	Level       AlertLevel
	Description AlertDescription
}

// AlertSize is the encoded length of an alert.
const AlertSize = 2

// Error implements error.
func (a Alert) Error() string {
	if a.Level == AlertLevelFatal {
		return "record: fatal alert: " + a.Description.String()
	}
	return "record: alert: " + a.Description.String()
}

// IsCloseNotify reports whether a is an orderly close.
func (a Alert) IsCloseNotify() bool {
	return a.Description == AlertCloseNotify
}

// Marshal encodes the alert.
func (a Alert) Marshal() []byte {
	return []byte{byte(a.Level), byte(a.Description)}
}

// ParseAlert decodes an alert body.
func ParseAlert(data []byte) (Alert, error) {
	if len(data) != AlertSize {
		return Alert{}, fmt.Errorf("%w: alert of %d bytes", ErrUnexpectedRecord, len(data))
	}
	return Alert{Level: AlertLevel(data[0]), Description: AlertDescription(data[1])}, nil
}

// AlertFor maps a record layer error to the alert sent before failing.
func AlertFor(err error) AlertDescription {
	switch {
	case isErr(err, ErrBadRecordMAC):
		return AlertBadRecordMAC
	case isErr(err, ErrRecordOverflow):
		return AlertRecordOverflow
	case isErr(err, ErrBadVersion):
		return AlertProtocolVersion
	case isErr(err, ErrUnexpectedRecord), isErr(err, ErrInvalidHeader):
		return AlertUnexpectedMessage
	default:
		return AlertInternalError
	}
}
