package smp

import "testing"

func featureCfg(io, authReq, oob byte) Config {
	return Config{IoCap: io, AuthReq: authReq, OobFlag: oob, MaxKeySize: maxKeySize}
}

func Test_SelectModel(t *testing.T) {
	pol := DefaultPolicy()
	mitm := AuthReqBond | AuthReqMITM

	cases := []struct {
		name     string
		legacy   bool
		req, rsp Config
		want     Model
	}{
		{"no mitm is always just works", false,
			featureCfg(IoCapKeyboardDisplay, AuthReqBond, oobDataNotPresent),
			featureCfg(IoCapKeyboardDisplay, AuthReqBond, oobDataNotPresent),
			ModelJustWorks},
		{"sc yes/no both sides", false,
			featureCfg(IoCapDisplayYesNo, mitm, oobDataNotPresent),
			featureCfg(IoCapDisplayYesNo, mitm, oobDataNotPresent),
			ModelNumericComparison},
		{"legacy display against keyboard", true,
			featureCfg(IoCapDisplayOnly, mitm, oobDataNotPresent),
			featureCfg(IoCapKeyboardOnly, mitm, oobDataNotPresent),
			ModelPasskeyEntry},
		{"display against keyboard", false,
			featureCfg(IoCapDisplayOnly, mitm, oobDataNotPresent),
			featureCfg(IoCapKeyboardOnly, mitm, oobDataNotPresent),
			ModelPasskeyEntry},
		{"keyboard against display", false,
			featureCfg(IoCapKeyboardOnly, mitm, oobDataNotPresent),
			featureCfg(IoCapDisplayOnly, mitm, oobDataNotPresent),
			ModelPasskeyEntry},
		{"keyboard both sides", true,
			featureCfg(IoCapKeyboardOnly, mitm, oobDataNotPresent),
			featureCfg(IoCapKeyboardOnly, mitm, oobDataNotPresent),
			ModelPasskeyEntry},
		{"one mitm flag suffices", false,
			featureCfg(IoCapKeyboardDisplay, mitm, oobDataNotPresent),
			featureCfg(IoCapKeyboardDisplay, AuthReqBond, oobDataNotPresent),
			ModelNumericComparison},
		{"legacy oob needs both sides, falls back", true,
			featureCfg(IoCapNoInputNoOutput, AuthReqBond, oobDataPresent),
			featureCfg(IoCapNoInputNoOutput, AuthReqBond, oobDataNotPresent),
			ModelJustWorks},
		{"legacy oob both sides", true,
			featureCfg(IoCapNoInputNoOutput, AuthReqBond, oobDataPresent),
			featureCfg(IoCapNoInputNoOutput, AuthReqBond, oobDataPresent),
			ModelOob},
		{"sc oob on one side suffices", false,
			featureCfg(IoCapNoInputNoOutput, AuthReqBond, oobDataNotPresent),
			featureCfg(IoCapNoInputNoOutput, AuthReqBond, oobDataPresent),
			ModelOob},
		{"oob beats io capabilities", false,
			featureCfg(IoCapDisplayYesNo, mitm, oobDataPresent),
			featureCfg(IoCapDisplayYesNo, mitm, oobDataPresent),
			ModelOob},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := selectModel(tc.legacy, tc.req, tc.rsp, pol)
			if err != nil {
				t.Fatal("unexpected error:", err)
			}
			if got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func Test_SelectModelFailures(t *testing.T) {
	pol := DefaultPolicy()
	mitm := AuthReqBond | AuthReqMITM

	t.Run("mitm with no io on either side", func(t *testing.T) {
		_, err := selectModel(false,
			featureCfg(IoCapNoInputNoOutput, mitm, oobDataNotPresent),
			featureCfg(IoCapNoInputNoOutput, mitm, oobDataNotPresent), pol)
		if err == nil || err.Reason != ReasonAuthenticationRequirements {
			t.Fatal("expected authentication requirements failure, got:", err)
		}
	})

	t.Run("legacy yes/no cannot authenticate", func(t *testing.T) {
		// legacy pairing has no numeric comparison, so two yes/no displays
		// land on just works and cannot honor the mitm demand
		_, err := selectModel(true,
			featureCfg(IoCapDisplayYesNo, mitm, oobDataNotPresent),
			featureCfg(IoCapDisplayYesNo, mitm, oobDataNotPresent), pol)
		if err == nil || err.Reason != ReasonAuthenticationRequirements {
			t.Fatal("expected authentication requirements failure, got:", err)
		}
	})

	t.Run("reserved io capability", func(t *testing.T) {
		_, err := selectModel(false,
			featureCfg(0x05, mitm, oobDataNotPresent),
			featureCfg(IoCapDisplayYesNo, mitm, oobDataNotPresent), pol)
		if err == nil || err.Reason != ReasonUnsupportedIoCapability {
			t.Fatal("expected unsupported io capability, got:", err)
		}
	})

	t.Run("oob forbidden by policy", func(t *testing.T) {
		noOob := pol
		noOob.AllowOOB = false
		_, err := selectModel(false,
			featureCfg(IoCapNoInputNoOutput, AuthReqBond, oobDataPresent),
			featureCfg(IoCapNoInputNoOutput, AuthReqBond, oobDataNotPresent), noOob)
		if err == nil || err.Reason != ReasonOobNotAvailable {
			t.Fatal("expected oob not available, got:", err)
		}
	})
}

func Test_CheckModelPolicy(t *testing.T) {
	scOnly := DefaultPolicy()
	scOnly.SecureConnectionsOnly = true

	if err := checkModelPolicy(ModelJustWorks, true, scOnly); err == nil ||
		err.Reason != ReasonAuthenticationRequirements {
		t.Fatal("sc only must refuse legacy, got:", err)
	}
	if err := checkModelPolicy(ModelJustWorks, false, scOnly); err == nil ||
		err.Reason != ReasonAuthenticationRequirements {
		t.Fatal("sc only must refuse just works, got:", err)
	}
	if err := checkModelPolicy(ModelNumericComparison, false, scOnly); err != nil {
		t.Fatal("sc only must accept authenticated sc models, got:", err)
	}

	noLegacy := DefaultPolicy()
	noLegacy.AllowLegacy = false
	if err := checkModelPolicy(ModelPasskeyEntry, true, noLegacy); err == nil ||
		err.Reason != ReasonPairingNotSupported {
		t.Fatal("disabled legacy must be refused, got:", err)
	}
	if err := checkModelPolicy(ModelPasskeyEntry, false, noLegacy); err != nil {
		t.Fatal("sc pairing must pass with legacy disabled, got:", err)
	}
}

func Test_PasskeyLocalDisplays(t *testing.T) {
	cases := []struct {
		role        Role
		local, peer byte
		want        bool
	}{
		{RoleCentral, IoCapDisplayOnly, IoCapKeyboardOnly, true},
		{RolePeripheral, IoCapKeyboardOnly, IoCapDisplayOnly, false},
		{RoleCentral, IoCapKeyboardOnly, IoCapKeyboardDisplay, false},
		{RolePeripheral, IoCapKeyboardDisplay, IoCapKeyboardOnly, true},
		// both could do either: the initiator displays
		{RoleCentral, IoCapKeyboardDisplay, IoCapKeyboardDisplay, true},
		{RolePeripheral, IoCapKeyboardDisplay, IoCapKeyboardDisplay, false},
		// both keyboard only: the user types on both ends
		{RoleCentral, IoCapKeyboardOnly, IoCapKeyboardOnly, false},
		{RolePeripheral, IoCapKeyboardOnly, IoCapKeyboardOnly, false},
	}
	for _, tc := range cases {
		if got := passkeyLocalDisplays(tc.role, tc.local, tc.peer); got != tc.want {
			t.Errorf("role %v local %#x peer %#x: got %v, want %v",
				tc.role, tc.local, tc.peer, got, tc.want)
		}
	}
}

func Test_ModelAuthenticated(t *testing.T) {
	if ModelJustWorks.Authenticated() {
		t.Fatal("just works is unauthenticated")
	}
	for _, m := range []Model{ModelNumericComparison, ModelPasskeyEntry, ModelOob} {
		if !m.Authenticated() {
			t.Fatalf("%v must count as authenticated", m)
		}
	}
}
