package cmd

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/PolarWolf314/docvault/internal/kdf"

	"github.com/spf13/pflag"
)

var _ pflag.Value = (*iterationsValue)(nil)

// iterationsValue is a pflag.Value accepting only the selectable PBKDF2
// iteration counts. Zero means "not set".
type iterationsValue int

func (v *iterationsValue) String() string {
	if *v == 0 {
		return ""
	}
	return strconv.Itoa(int(*v))
}

func (v *iterationsValue) Set(s string) error {
	n, err := strconv.Atoi(strings.ReplaceAll(s, "_", ""))
	if err != nil || !slices.Contains(kdf.AllowedIterations, n) {
		return fmt.Errorf("must be one of %s", allowedIterations())
	}
	*v = iterationsValue(n)
	return nil
}

func (v *iterationsValue) Type() string {
	return "iterations"
}

func allowedIterations() string {
	choices := make([]string, len(kdf.AllowedIterations))
	for i, n := range kdf.AllowedIterations {
		choices[i] = strconv.Itoa(n)
	}
	return strings.Join(choices, ", ")
}
