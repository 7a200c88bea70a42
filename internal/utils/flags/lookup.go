// Package flags reads Cobra flag values together with whether the user set them explicitly.
package flags

import (
	"errors"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// ErrFlagNotDefined indicates that the requested flag is not present on the command.
var ErrFlagNotDefined = errors.New("flag not defined")

// BoolFlag returns the flag value and whether it was set on the command line.
func BoolFlag(command *cobra.Command, name string) (bool, bool, error) {
	flagSet, flag := locateFlag(command, name)
	if flag == nil {
		return false, false, ErrFlagNotDefined
	}
	value, err := flagSet.GetBool(name)
	if err != nil {
		return false, false, err
	}
	return value, flag.Changed, nil
}

// StringFlag returns the flag value and whether it was set on the command line.
func StringFlag(command *cobra.Command, name string) (string, bool, error) {
	flagSet, flag := locateFlag(command, name)
	if flag == nil {
		return "", false, ErrFlagNotDefined
	}
	value, err := flagSet.GetString(name)
	if err != nil {
		return "", false, err
	}
	return value, flag.Changed, nil
}

// DurationFlag returns the flag value and whether it was set on the command line.
func DurationFlag(command *cobra.Command, name string) (time.Duration, bool, error) {
	flagSet, flag := locateFlag(command, name)
	if flag == nil {
		return 0, false, ErrFlagNotDefined
	}
	value, err := flagSet.GetDuration(name)
	if err != nil {
		return 0, false, err
	}
	return value, flag.Changed, nil
}

// OverrideString replaces target with the flag value when the flag was set explicitly.
func OverrideString(command *cobra.Command, name string, target *string) {
	if value, changed, err := StringFlag(command, name); err == nil && changed {
		*target = value
	}
}

// OverrideBool replaces target with the flag value when the flag was set explicitly.
func OverrideBool(command *cobra.Command, name string, target *bool) {
	if value, changed, err := BoolFlag(command, name); err == nil && changed {
		*target = value
	}
}

func locateFlag(command *cobra.Command, name string) (*pflag.FlagSet, *pflag.Flag) {
	if command == nil {
		return nil, nil
	}

	candidateSets := []*pflag.FlagSet{
		command.Flags(),
		command.PersistentFlags(),
		command.InheritedFlags(),
	}

	if root := command.Root(); root != nil {
		candidateSets = append(candidateSets, root.PersistentFlags())
	}

	for _, set := range candidateSets {
		if set == nil {
			continue
		}
		if flag := set.Lookup(name); flag != nil {
			return set, flag
		}
	}

	return nil, nil
}
