package orchestrator

import "fmt"

// State is where a scenario is in its lifecycle.
type State string

const (
	StateDefined       State = "Defined"
	StateAssetDeployed State = "AssetDeployed"
	StateVaultCreated  State = "VaultCreated"
	StateAuthorized    State = "Authorized"
	StatePopulated     State = "Populated"
	StateComplete      State = "Complete"
	StateFailed        State = "Failed"
)

var allowedTransitions = map[State]map[State]struct{}{
	StateDefined: {
		StateAssetDeployed: {},
		StateFailed:        {},
	},
	StateAssetDeployed: {
		StateVaultCreated: {},
		StateFailed:       {},
	},
	StateVaultCreated: {
		StateAuthorized: {},
		StateFailed:     {},
	},
	StateAuthorized: {
		StatePopulated: {},
		StateFailed:    {},
	},
	StatePopulated: {
		StateComplete: {},
		StateFailed:   {},
	},
	StateComplete: {},
	StateFailed:   {},
}

func ValidateState(s State) error {
	if _, ok := allowedTransitions[s]; !ok {
		return fmt.Errorf("invalid scenario state: %q", s)
	}
	return nil
}

func ValidateTransition(from, to State) error {
	if err := ValidateState(from); err != nil {
		return err
	}
	if err := ValidateState(to); err != nil {
		return err
	}
	if _, ok := allowedTransitions[from][to]; !ok {
		return fmt.Errorf("invalid scenario transition: %s -> %s", from, to)
	}
	return nil
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return len(allowedTransitions[s]) == 0
}

// Succeeded reports whether a run that stopped in s counts as a success.
// Populated is final when verification is off.
func (s State) Succeeded() bool {
	return s == StateComplete || s == StatePopulated
}

// Step names the unit of work that moves a scenario out of a state.
type Step string

const (
	StepProvision   Step = "provision"
	StepCreateVault Step = "create-vault"
	StepAuthorize   Step = "authorize"
	StepPopulate    Step = "populate"
	StepVerify      Step = "verify"
)
