package bacnet

import "fmt"

// AbortReason is the BACnetAbortReason enumeration
type AbortReason uint8

// RejectReason is the BACnetRejectReason enumeration
type RejectReason uint8

var abortReasonNames = []string{
	"Other",
	"Buffer Overflow",
	"Invalid APDU in this State",
	"Preempted by Higher Priority Task",
	"Segmentation Not Supported",
	"Security Error",
	"Insufficient Security",
	"Window Size Out of Range",
	"Application Exceeded Reply Time",
	"Out of Resources",
	"TSM Timeout",
	"APDU Too Long",
}

var rejectReasonNames = []string{
	"Other",
	"Buffer Overflow",
	"Inconsistent Parameters",
	"Invalid Parameter Data Type",
	"Invalid Tag",
	"Missing Required Parameter",
	"Parameter Out of Range",
	"Too Many Arguments",
	"Undefined Enumeration",
	"Unrecognized Service",
}

// Values 64-255 are reserved for vendor use in both enumerations
const firstProprietaryReason = 64

// String returns the human readable abort reason
func (r AbortReason) String() string {
	return reasonName(abortReasonNames, uint8(r))
}

// String returns the human readable reject reason
func (r RejectReason) String() string {
	return reasonName(rejectReasonNames, uint8(r))
}

func reasonName(names []string, v uint8) string {
	if int(v) < len(names) {
		return names[v]
	}
	if v >= firstProprietaryReason {
		return fmt.Sprintf("Proprietary %d", v)
	}
	return fmt.Sprintf("Reserved %d", v)
}
