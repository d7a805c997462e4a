package cbgroup

import "errors"

var (
	ErrGroupAlreadyAssociated = errors.New("callback group already associated with an executor")
	ErrGroupNotAssociated     = errors.New("callback group not associated with this executor")
	ErrNodeAlreadyAdded       = errors.New("node already added to this executor")
	ErrNodeNotAdded           = errors.New("node not added to this executor")
	ErrAlreadySpinning        = errors.New("executor is already spinning")

	ErrUnknownGroupType     = errors.New("unknown callback group type")
	ErrUnknownRealTimeClass = errors.New("unknown real-time class")
)
