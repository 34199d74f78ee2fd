package smp

// Model is the association model resolved for a session. It is fixed once
// phase 2 starts; only a session restarted from idle reselects.
type Model int

const (
	ModelJustWorks Model = iota
	ModelNumericComparison
	ModelPasskeyEntry
	ModelOob
	ModelUnsupported
)

var modelStrings = map[Model]string{
	ModelJustWorks:         "just works",
	ModelNumericComparison: "numeric comparison",
	ModelPasskeyEntry:      "passkey entry",
	ModelOob:               "out of band",
	ModelUnsupported:       "unsupported",
}

func (m Model) String() string {
	if s, ok := modelStrings[m]; ok {
		return s
	}
	return "unknown"
}

// Authenticated reports whether the model provides MITM protection.
func (m Model) Authenticated() bool {
	switch m {
	case ModelNumericComparison, ModelPasskeyEntry, ModelOob:
		return true
	}
	return false
}

// Core spec v5.0 Vol 3, Part H, 2.3.5.1
// Tables 2.6, 2.7, and 2.8, indexed [responder io][initiator io]
var ioCapsTableSC = [][]Model{
	{ModelJustWorks, ModelJustWorks, ModelPasskeyEntry, ModelJustWorks, ModelPasskeyEntry},
	{ModelJustWorks, ModelNumericComparison, ModelPasskeyEntry, ModelJustWorks, ModelNumericComparison},
	{ModelPasskeyEntry, ModelPasskeyEntry, ModelPasskeyEntry, ModelJustWorks, ModelPasskeyEntry},
	{ModelJustWorks, ModelJustWorks, ModelJustWorks, ModelJustWorks, ModelJustWorks},
	{ModelPasskeyEntry, ModelNumericComparison, ModelPasskeyEntry, ModelJustWorks, ModelNumericComparison},
}

var ioCapsTableLegacy = [][]Model{
	{ModelJustWorks, ModelJustWorks, ModelPasskeyEntry, ModelJustWorks, ModelPasskeyEntry},
	{ModelJustWorks, ModelJustWorks, ModelPasskeyEntry, ModelJustWorks, ModelPasskeyEntry},
	{ModelPasskeyEntry, ModelPasskeyEntry, ModelPasskeyEntry, ModelJustWorks, ModelPasskeyEntry},
	{ModelJustWorks, ModelJustWorks, ModelJustWorks, ModelJustWorks, ModelJustWorks},
	{ModelPasskeyEntry, ModelPasskeyEntry, ModelPasskeyEntry, ModelJustWorks, ModelPasskeyEntry},
}

// selectModel resolves the association model from the exchanged pairing
// features. req holds the initiator's features, rsp the responder's. A
// non-nil error means the requirements cannot be met and the session must
// fail instead of downgrading.
func selectModel(legacy bool, req, rsp Config, pol Policy) (Model, *Error) {
	mitm := req.mitm() || rsp.mitm()

	// OOB first: legacy needs the data on both sides, SC on either
	oob := req.OobFlag == oobDataPresent && rsp.OobFlag == oobDataPresent
	if !legacy {
		oob = req.OobFlag == oobDataPresent || rsp.OobFlag == oobDataPresent
	}
	if oob {
		if !pol.AllowOOB {
			return ModelUnsupported, newError(ReasonOobNotAvailable,
				"peer offers OOB data but local policy forbids it")
		}
		return ModelOob, nil
	}

	if !mitm {
		return ModelJustWorks, nil
	}

	if req.IoCap >= ioCapReservedStart || rsp.IoCap >= ioCapReservedStart {
		return ModelUnsupported, newErrorf(ReasonUnsupportedIoCapability,
			"reserved io capability: req %#x rsp %#x", req.IoCap, rsp.IoCap)
	}

	table := ioCapsTableSC
	if legacy {
		table = ioCapsTableLegacy
	}

	model := table[rsp.IoCap][req.IoCap]
	if model == ModelJustWorks {
		// MITM was demanded but neither side can authenticate
		return ModelUnsupported, newErrorf(ReasonAuthenticationRequirements,
			"MITM required but io capabilities (req %#x, rsp %#x) cannot authenticate",
			req.IoCap, rsp.IoCap)
	}

	return model, nil
}

// checkModelPolicy applies the policy gates that run after table selection.
func checkModelPolicy(model Model, legacy bool, pol Policy) *Error {
	if pol.SecureConnectionsOnly {
		if legacy {
			return newError(ReasonAuthenticationRequirements,
				"secure connections only mode refuses legacy pairing")
		}
		if model == ModelJustWorks {
			return newError(ReasonAuthenticationRequirements,
				"secure connections only mode refuses unauthenticated just works")
		}
	}
	if legacy && !pol.AllowLegacy {
		return newError(ReasonPairingNotSupported, "legacy pairing disabled")
	}
	return nil
}

// passkeyLocalDisplays decides which end shows the passkey; the other end
// types it. When both ends could do either, the initiator displays. Both
// sides being keyboard-only means the user types the same code on both, so
// nobody displays.
func passkeyLocalDisplays(role Role, local, peer byte) bool {
	if local == IoCapKeyboardOnly {
		return false
	}
	if peer == IoCapKeyboardOnly {
		return true
	}
	return role == RoleCentral
}
