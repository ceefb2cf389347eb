package cloud

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
)

var (
	ErrShutdown                   = errors.New("cloud is shutting down")
	ErrNoMatchingConfiguration    = errors.New("no matching configuration")
	ErrConfigInBackoff            = errors.New("configuration had provisioning problems recently")
	ErrCapacityReached            = errors.New("maximum number of instances reached")
	ErrNoLabelForRole             = errors.New("no label for role")
	ErrSubProvisionPartialFailure = errors.New("some sub-node provisioning failed")
	ErrSubProvisionCountMismatch  = errors.New("wrong number of sub-nodes provisioned")
	ErrRegistryAdd                = errors.New("failed to add node to registry")
	ErrAssembly                   = errors.New("compound node assembly failed")
)

// RequirementError reports the failure of the sub-nodes of one role.
type RequirementError struct {
	Label     string
	Role      string
	Requested int
	Acquired  int
	Err       error
}

func (e *RequirementError) Error() string {
	return fmt.Sprintf("error deploying label '%s' for role '%s' (%d/%d nodes): %s", e.Label, e.Role, e.Acquired, e.Requested, e.Err)
}

func (e *RequirementError) Unwrap() error {
	return e.Err
}

// AssemblyError is the single error a failed compound node assembly resolves with.
type AssemblyError struct {
	Node          string
	Label         string
	Configuration string
	Errs          []error
}

func (e *AssemblyError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "failed to assemble compound node '%s' for label '%s' with configuration '%s'", e.Node, e.Label, e.Configuration)
	for i, err := range e.Errs {
		b.WriteString(lo.Ternary(i == 0, ": ", "; "))
		b.WriteString(err.Error())
	}
	return b.String()
}

func (e *AssemblyError) Unwrap() []error {
	return append([]error{ErrAssembly}, e.Errs...)
}
