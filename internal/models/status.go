package models

type WithdrawalStatus string

const (
	WithdrawalPending      WithdrawalStatus = "pending"
	WithdrawalAgentPending WithdrawalStatus = "agent_pending"
	WithdrawalCompleted    WithdrawalStatus = "completed"
	WithdrawalRejected     WithdrawalStatus = "rejected"
)

var withdrawalTransitions = map[WithdrawalStatus][]WithdrawalStatus{
	WithdrawalPending:      {WithdrawalAgentPending, WithdrawalCompleted, WithdrawalRejected},
	WithdrawalAgentPending: {WithdrawalCompleted, WithdrawalRejected},
}

func (s WithdrawalStatus) CanTransitionTo(next WithdrawalStatus) bool {
	return allowed(withdrawalTransitions[s], next)
}

// Open reports whether the withdrawal can still be matched by its verification code.
func (s WithdrawalStatus) Open() bool {
	return s == WithdrawalPending || s == WithdrawalAgentPending
}

type WithdrawalRequestStatus string

const (
	RequestPending   WithdrawalRequestStatus = "pending"
	RequestApproved  WithdrawalRequestStatus = "approved"
	RequestRejected  WithdrawalRequestStatus = "rejected"
	RequestCompleted WithdrawalRequestStatus = "completed"
)

var requestTransitions = map[WithdrawalRequestStatus][]WithdrawalRequestStatus{
	RequestPending:  {RequestApproved, RequestRejected},
	RequestApproved: {RequestCompleted, RequestRejected},
}

func (s WithdrawalRequestStatus) CanTransitionTo(next WithdrawalRequestStatus) bool {
	return allowed(requestTransitions[s], next)
}

type PendingTransferStatus string

const (
	PendingTransferPending   PendingTransferStatus = "pending"
	PendingTransferClaimed   PendingTransferStatus = "claimed"
	PendingTransferCancelled PendingTransferStatus = "cancelled"
	PendingTransferExpired   PendingTransferStatus = "expired"
)

var pendingTransferTransitions = map[PendingTransferStatus][]PendingTransferStatus{
	PendingTransferPending: {PendingTransferClaimed, PendingTransferCancelled, PendingTransferExpired},
}

func (s PendingTransferStatus) CanTransitionTo(next PendingTransferStatus) bool {
	return allowed(pendingTransferTransitions[s], next)
}

type TransferStatus string

const (
	TransferPending   TransferStatus = "pending"
	TransferCompleted TransferStatus = "completed"
	TransferCancelled TransferStatus = "cancelled"
)

var transferTransitions = map[TransferStatus][]TransferStatus{
	TransferPending: {TransferCompleted, TransferCancelled},
}

func (s TransferStatus) CanTransitionTo(next TransferStatus) bool {
	return allowed(transferTransitions[s], next)
}

type CompensationStatus string

const (
	// CompensationArmed marks the inverse of a forward step whose saga is still running.
	CompensationArmed     CompensationStatus = "armed"
	CompensationPending   CompensationStatus = "pending"
	// CompensationApplying marks a pending compensation claimed by one retrier.
	CompensationApplying  CompensationStatus = "applying"
	CompensationApplied   CompensationStatus = "applied"
	CompensationReleased  CompensationStatus = "released"
	CompensationDiscarded CompensationStatus = "discarded"
)

var compensationTransitions = map[CompensationStatus][]CompensationStatus{
	CompensationArmed:    {CompensationPending, CompensationApplied, CompensationReleased},
	CompensationPending:  {CompensationApplying},
	CompensationApplying: {CompensationPending, CompensationApplied, CompensationDiscarded},
}

func (s CompensationStatus) CanTransitionTo(next CompensationStatus) bool {
	return allowed(compensationTransitions[s], next)
}

func allowed[S comparable](targets []S, next S) bool {
	for _, t := range targets {
		if t == next {
			return true
		}
	}
	return false
}
