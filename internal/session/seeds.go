package session

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/mrz1836/legion/internal/browser"
	"github.com/mrz1836/legion/internal/constants"
	legionerrors "github.com/mrz1836/legion/internal/errors"
	"github.com/mrz1836/legion/internal/selector"
)

// Rally point anchors the raid handler resolves. The login and challenge
// anchors live in the browser package; these are worker-only.
const (
	// EntryRallyX is the target x-coordinate input on the send-troops form.
	EntryRallyX = "rally-x"

	// EntryRallyY is the target y-coordinate input on the send-troops form.
	EntryRallyY = "rally-y"

	// EntryRallySend submits the send-troops form.
	EntryRallySend = "rally-send"

	// EntryRallyConfirm confirms the dispatch on the review page.
	EntryRallyConfirm = "rally-confirm"

	// EntryTravelDuration shows the one-way march duration on the review
	// page. Optional; the computed estimate stands when it cannot be read.
	EntryTravelDuration = "travel-duration"
)

// TroopEntry returns the selector entry name for a troop slot input.
func TroopEntry(unit string) string {
	return "troop-" + unit
}

// defaultSeed is one registry entry's initial candidate set.
type defaultSeed struct {
	name     string
	kind     constants.ElementKind
	locators []string
}

// defaultSeeds lists the starting locators for every anchor the worker
// needs. They are data, not contract: resolution feedback reranks them and
// healing replaces them when the page changes.
func defaultSeeds() []defaultSeed {
	seeds := []defaultSeed{
		{browser.EntryLoginUser, constants.ElementKindInput,
			[]string{"input[name='user']", "input[name='name']"}},
		{browser.EntryLoginPass, constants.ElementKindInput,
			[]string{"input[name='pass']", "input[type='password']"}},
		{browser.EntryLoginSubmit, constants.ElementKindButton,
			[]string{"button[type='submit']", "input[type='submit']"}},
		{browser.EntryLoggedInProbe, constants.ElementKindAny,
			[]string{"#sidebarBoxVillagelist", "a[href*='logout']"}},
		{browser.EntryChallenge, constants.ElementKindAny,
			[]string{"#challenge", "img.captcha"}},
		{browser.EntryChallengeInput, constants.ElementKindInput,
			[]string{"input[name='challenge']", "#challenge input[type='text']"}},
		{browser.EntryChallengeSubmit, constants.ElementKindButton,
			[]string{"#challenge button[type='submit']", "#challenge input[type='submit']"}},
		{EntryRallyX, constants.ElementKindInput,
			[]string{"input[name='x']", "#xCoordInput"}},
		{EntryRallyY, constants.ElementKindInput,
			[]string{"input[name='y']", "#yCoordInput"}},
		{EntryRallySend, constants.ElementKindButton,
			[]string{"#btn_ok", "button[type='submit']"}},
		{EntryRallyConfirm, constants.ElementKindButton,
			[]string{"#btn_ok", "button.rallyPointConfirm"}},
		{EntryTravelDuration, constants.ElementKindField,
			[]string{"td.duration", "#duration"}},
	}
	for i := 1; i <= 11; i++ {
		unit := fmt.Sprintf("t%d", i)
		seeds = append(seeds, defaultSeed{TroopEntry(unit), constants.ElementKindInput,
			[]string{
				fmt.Sprintf("input[name='troops[%s]']", unit),
				fmt.Sprintf("input[name='%s']", unit),
			}})
	}
	return seeds
}

// seedDefaults creates missing entries with their default candidates.
// Entries that already exist are left exactly as the registry has them, so
// healed and reranked state survives restarts.
func seedDefaults(ctx context.Context, registry *selector.Registry, now time.Time) error {
	for _, s := range defaultSeeds() {
		if _, err := registry.Lookup(s.name); err == nil {
			continue
		} else if !stderrors.Is(err, legionerrors.ErrEntryNotFound) {
			return err
		}
		if err := registry.Seed(ctx, s.name, s.kind, now, s.locators...); err != nil {
			return err
		}
	}
	return nil
}
