package vm

import (
	"fmt"
	"os"
)

// ---------------------------------------------------------------------------
// Contract violations
// ---------------------------------------------------------------------------

// Contract names a rule whose violation is a fatal programmer error.
type Contract string

const (
	ContractUnattachedThread Contract = "unattached thread"
	ContractCrossThread      Contract = "cross-thread local reference"
	ContractUseAfterFrame    Contract = "local reference used after its frame"
	ContractDeletedRef       Contract = "deleted reference"
	ContractNoFrame          Contract = "no live local frame"
	ContractCriticalRegion   Contract = "call inside critical region"
	ContractNullReceiver     Contract = "null receiver for instance call"
	ContractArrayBounds      Contract = "array index out of bounds"
	ContractTokenForgery     Contract = "forged context token"
	ContractArgumentType     Contract = "argument kind mismatch"
	ContractWrongObject      Contract = "reference of unexpected shape"
	ContractTornDown         Contract = "use after teardown"
)

// ContractViolation describes a fatal misuse of the VM interface.
type ContractViolation struct {
	Contract Contract
	Detail   string
}

// Error implements the error interface.
func (c *ContractViolation) Error() string {
	if c.Detail == "" {
		return "fatal: " + string(c.Contract)
	}
	return fmt.Sprintf("fatal: %s: %s", c.Contract, c.Detail)
}

// exitFunc is swapped out by tests that need to observe aborts.
var exitFunc = os.Exit

// Fatal reports a contract violation. When the VM aborts on misuse the
// process exits with a diagnostic; otherwise the violation is raised as a
// panic carrying a *ContractViolation.
func (vm *VM) Fatal(contract Contract, format string, args ...any) {
	cv := &ContractViolation{Contract: contract, Detail: fmt.Sprintf(format, args...)}
	log.Criticalf("%s", cv.Error())
	if vm != nil && vm.abortOnMisuse.Load() {
		fmt.Fprintf(os.Stderr, "mbind: %s\n", cv.Error())
		exitFunc(134)
	}
	panic(cv)
}

// AsContractViolation extracts a contract violation from a recovered panic
// value. Returns nil for any other value.
func AsContractViolation(r any) *ContractViolation {
	cv, _ := r.(*ContractViolation)
	return cv
}
