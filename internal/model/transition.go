package model

// Допустимые переходы статусов и допустимые сигналы по статусу. Таблицы —
// единственный источник правил; registry и relay не дублируют их.

var transitions = map[CallStatus]map[CallStatus]bool{
	CallStatusRinging: {
		CallStatusAccepted: true,
		CallStatusEnded:    true,
	},
	CallStatusAccepted: {
		CallStatusConnected: true,
		CallStatusEnded:     true,
	},
	CallStatusConnected: {
		CallStatusEnded: true,
	},
	CallStatusEnded: {},
}

var legalKinds = map[CallStatus]map[SignalKind]bool{
	CallStatusRinging: {
		SignalCallAnswer: true,
		SignalCallReject: true,
		SignalCallEnd:    true,
	},
	CallStatusAccepted: {
		SignalNegotiationOffer:     true,
		SignalNegotiationAnswer:    true,
		SignalNegotiationCandidate: true,
		SignalCallEnd:              true,
	},
	CallStatusConnected: {
		SignalNegotiationCandidate: true,
		SignalCallEnd:              true,
	},
	CallStatusEnded: {},
}

// CanTransition reports whether the status edge from → to is legal.
func CanTransition(from, to CallStatus) bool {
	return transitions[from][to]
}

// KindAllowed reports whether a signaling message of the given kind may be
// routed while the session is in the given status. call-initiate is never
// routed against an existing session and is always false here.
func KindAllowed(status CallStatus, kind SignalKind) bool {
	return legalKinds[status][kind]
}

// IsTerminal reports whether the status admits no further transitions.
func IsTerminal(status CallStatus) bool {
	return status == CallStatusEnded
}

// IsActive reports whether the session still blocks a new call between the
// same pair of participants.
func IsActive(status CallStatus) bool {
	return status == CallStatusRinging || status == CallStatusAccepted || status == CallStatusConnected
}

// LifecycleTarget returns the status a lifecycle signal drives the session to,
// or "" for kinds that do not change status (negotiation traffic).
func LifecycleTarget(kind SignalKind) CallStatus {
	switch kind {
	case SignalCallAnswer:
		return CallStatusAccepted
	case SignalCallReject, SignalCallEnd:
		return CallStatusEnded
	}
	return ""
}
