package session

import (
	"context"
	stderrors "errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/mrz1836/legion/internal/browser"
	"github.com/mrz1836/legion/internal/domain"
	legionerrors "github.com/mrz1836/legion/internal/errors"
	"github.com/mrz1836/legion/internal/farm"
)

// Task payload keys the handlers read.
const (
	// PayloadKeyPath is a server-relative page path.
	PayloadKeyPath = "path"

	// PayloadKeyURL is an absolute page URL.
	PayloadKeyURL = "url"

	// PayloadKeyAnchor names the selector entry to act on.
	PayloadKeyAnchor = "anchor"

	// PayloadKeyProbe names the selector entry that verifies the action.
	PayloadKeyProbe = "probe"

	// PayloadKeyText is typed into the anchor before it is clicked.
	PayloadKeyText = "text"

	// PayloadKeyX, PayloadKeyY are map coordinates for scan tasks.
	PayloadKeyX = "x"
	PayloadKeyY = "y"
)

// travelPattern matches the H:MM:SS march duration shown on the dispatch
// review page.
//
//nolint:gochecknoglobals // Compiled once, immutable
var travelPattern = regexp.MustCompile(`(\d+):([0-5]\d):([0-5]\d)`)

// ParseTravelDuration extracts an H:MM:SS duration from page text.
func ParseTravelDuration(text string) (time.Duration, error) {
	m := travelPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, legionerrors.Wrapf(legionerrors.ErrEmptyValue, "no duration in %q", text)
	}
	hours, _ := strconv.Atoi(m[1])
	minutes, _ := strconv.Atoi(m[2])
	seconds, _ := strconv.Atoi(m[3])
	return time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second, nil
}

// handleRaid sends one raid: fill the rally point form with the target's
// coordinates and troops, submit, confirm, and report the dispatch back to
// the farm manager together with the page's own travel duration when it can
// be read.
func (w *Worker) handleRaid(ctx context.Context, t *domain.Task) error {
	targetID, ok := t.PayloadInt64(farm.PayloadKeyTargetID)
	if !ok {
		return legionerrors.Wrap(legionerrors.ErrInvalidTask, "raid task missing target_id")
	}
	target, err := w.farms.Get(targetID)
	if err != nil {
		return err
	}

	dispatchedAt := w.clk.Now()
	if err = w.sess.Navigate(ctx, w.cfg.Server.RallyPointURL()); err != nil {
		return err
	}
	if err = browser.ResolveChallenge(ctx, w.sess, w.finder, w.solver, w.logger); err != nil {
		return err
	}

	if err = w.fill(ctx, EntryRallyX, strconv.Itoa(target.X)); err != nil {
		return err
	}
	if err = w.fill(ctx, EntryRallyY, strconv.Itoa(target.Y)); err != nil {
		return err
	}

	troops := target.Troops
	if len(troops) == 0 {
		troops = w.cfg.Raids.DefaultTroops
	}
	for _, unit := range sortedUnits(troops) {
		count := troops[unit]
		if count <= 0 {
			continue
		}
		if err = w.fill(ctx, TroopEntry(unit), strconv.Itoa(count)); err != nil {
			return err
		}
	}

	if err = w.click(ctx, EntryRallySend); err != nil {
		return err
	}
	if err = w.click(ctx, EntryRallyConfirm); err != nil {
		return err
	}

	reported, err := w.readTravelDuration(ctx)
	if err != nil {
		return err
	}

	w.logger.Info().
		Int64("target_id", targetID).
		Str("target", target.Name).
		Dur("reported_travel", reported).
		Msg("raid dispatched")
	return w.farms.Confirm(ctx, targetID, dispatchedAt, reported)
}

// handleBuild navigates to the building page named by the payload and clicks
// the action anchor.
func (w *Worker) handleBuild(ctx context.Context, t *domain.Task) error {
	return w.handlePageAction(ctx, t, "build")
}

// handleTrainTroops navigates to the training page and performs the action
// anchor, typing the optional text payload first (troop amount).
func (w *Worker) handleTrainTroops(ctx context.Context, t *domain.Task) error {
	return w.handlePageAction(ctx, t, "train_troops")
}

// handlePageAction is the shared navigate-act-verify flow behind build and
// train tasks.
func (w *Worker) handlePageAction(ctx context.Context, t *domain.Task, label string) error {
	path, ok := t.PayloadString(PayloadKeyPath)
	if !ok || path == "" {
		return legionerrors.Wrapf(legionerrors.ErrInvalidTask, "%s task missing path", label)
	}
	anchor, ok := t.PayloadString(PayloadKeyAnchor)
	if !ok || anchor == "" {
		return legionerrors.Wrapf(legionerrors.ErrInvalidTask, "%s task missing anchor", label)
	}

	if err := w.sess.Navigate(ctx, w.cfg.Server.BaseURL+path); err != nil {
		return err
	}
	if err := browser.ResolveChallenge(ctx, w.sess, w.finder, w.solver, w.logger); err != nil {
		return err
	}

	if text, hasText := t.PayloadString(PayloadKeyText); hasText && text != "" {
		if err := w.fill(ctx, anchor, text); err != nil {
			return err
		}
	}
	if err := w.click(ctx, anchor); err != nil {
		return err
	}

	if probe, hasProbe := t.PayloadString(PayloadKeyProbe); hasProbe && probe != "" {
		present, err := w.finder.Probe(ctx, w.sess, probe)
		if err != nil {
			return err
		}
		if !present {
			return legionerrors.Wrapf(legionerrors.ErrActionFailed, "%s probe %q did not resolve", label, probe)
		}
	}

	w.logger.Info().Str("kind", label).Str("path", path).Msg("page action completed")
	return nil
}

// handleScan captures a page snapshot around the payload coordinates for
// later analysis.
func (w *Worker) handleScan(ctx context.Context, t *domain.Task) error {
	path, ok := t.PayloadString(PayloadKeyPath)
	if !ok || path == "" {
		x, okX := t.PayloadInt64(PayloadKeyX)
		y, okY := t.PayloadInt64(PayloadKeyY)
		if !okX || !okY {
			return legionerrors.Wrap(legionerrors.ErrInvalidTask, "scan task needs a path or coordinates")
		}
		path = fmt.Sprintf("/karte.php?x=%d&y=%d", x, y)
	}

	if err := w.sess.Navigate(ctx, w.cfg.Server.BaseURL+path); err != nil {
		return err
	}
	snap, err := w.sess.Snapshot(ctx)
	if err != nil {
		return err
	}
	saved, err := w.exec.Store().SaveSnapshot(ctx, &snap)
	if err != nil {
		return err
	}

	w.logger.Info().Str("snapshot", snap.ID).Str("path", saved).Msg("scan captured")
	return nil
}

// handleCustom visits a payload-provided URL and optionally clicks an
// anchor. Exists for extension and tests.
func (w *Worker) handleCustom(ctx context.Context, t *domain.Task) error {
	url, ok := t.PayloadString(PayloadKeyURL)
	if !ok || url == "" {
		return legionerrors.Wrap(legionerrors.ErrInvalidTask, "custom task missing url")
	}
	if err := w.sess.Navigate(ctx, url); err != nil {
		return err
	}
	if anchor, hasAnchor := t.PayloadString(PayloadKeyAnchor); hasAnchor && anchor != "" {
		return w.click(ctx, anchor)
	}
	return nil
}

// fill resolves the entry, clears it and types the value.
func (w *Worker) fill(ctx context.Context, entry, value string) error {
	el, err := w.finder.Find(ctx, w.sess, entry)
	if err != nil {
		return err
	}
	if err = w.sess.Perform(ctx, browser.Clear(), el); err != nil {
		return err
	}
	return w.sess.Perform(ctx, browser.TypeText(value), el)
}

// click resolves the entry and clicks it.
func (w *Worker) click(ctx context.Context, entry string) error {
	el, err := w.finder.Find(ctx, w.sess, entry)
	if err != nil {
		return err
	}
	return w.sess.Perform(ctx, browser.Click(), el)
}

// readTravelDuration reads the page-reported march duration from the
// confirmation page. The entry is optional: resolution failure leaves the
// computed estimate in charge, only transport failures propagate.
func (w *Worker) readTravelDuration(ctx context.Context) (time.Duration, error) {
	el, err := w.finder.Find(ctx, w.sess, EntryTravelDuration)
	if err != nil {
		if stderrors.Is(err, legionerrors.ErrElementResolutionFailure) ||
			stderrors.Is(err, legionerrors.ErrEntryNotFound) {
			return 0, nil
		}
		return 0, err
	}

	text, err := w.sess.ReadText(ctx, el)
	if err != nil {
		return 0, err
	}
	d, err := ParseTravelDuration(text)
	if err != nil {
		w.logger.Debug().Str("text", text).Msg("travel duration not parseable, using estimate")
		return 0, nil
	}
	return d, nil
}

// sortedUnits returns the troop slot names in stable order so form filling
// is deterministic.
func sortedUnits(troops map[string]int) []string {
	units := make([]string, 0, len(troops))
	for unit := range troops {
		units = append(units, unit)
	}
	sort.Strings(units)
	return units
}
