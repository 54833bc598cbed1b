package main

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"golang.org/x/term"
	"maze.io/x/duration"

	"github.com/ts4z/trz/config"
	"github.com/ts4z/trz/dbutil"
	"github.com/ts4z/trz/defaults"
	"github.com/ts4z/trz/kpi"
	"github.com/ts4z/trz/model"
	"github.com/ts4z/trz/settings"
	"github.com/ts4z/trz/state"
	"github.com/ts4z/trz/textutil"
)

var clock clockwork.Clock = clockwork.NewRealClock()

// env is what every subcommand works against.
type env struct {
	db       *sql.DB
	storage  *state.DBStorage
	reports  *state.ReportStore
	settings *settings.Service
}

func (e *env) Close() {
	e.db.Close()
}

func openEnv(ctx context.Context) (*env, error) {
	db, dialect, err := dbutil.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	storage := state.NewDBStorage(db, dialect)
	return &env{
		db:       db,
		storage:  storage,
		reports:  state.NewReportStore(storage, config.Location()),
		settings: settings.NewService(storage, defaults.Settings()),
	}, nil
}

func dbInit(ctx context.Context, e *env) error {
	if err := state.Bootstrap(ctx, e.db, e.storage.Dialect()); err != nil {
		return err
	}
	fmt.Printf("schema ready (%s)\n", e.storage.Dialect())
	return nil
}

func listReports(ctx context.Context, e *env, w io.Writer, f model.ReportFilters) error {
	all, err := e.reports.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("listing reports: %w", err)
	}
	records := kpi.Filter(all, f)
	rows := kpi.Rows(records, "", config.PrizePolicy().AutoProfitRate)

	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tTOURNAMENT\tTEAMS\tCOLLECTED\tPROFIT")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			r.ID,
			textutil.FormatDateTimeBR(r.CreatedAt, config.Location()),
			r.Tournament,
			r.Teams,
			textutil.FormatBRL(r.Collected),
			textutil.FormatBRL(r.RealProfit))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d report(s)\n", len(rows))
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func showReport(ctx context.Context, e *env, w io.Writer, id string, table bool) error {
	r, err := e.reports.Fetch(ctx, id)
	if err != nil {
		return fmt.Errorf("fetching report %s: %w", id, err)
	}
	if !table {
		return writeJSON(w, r)
	}
	return writeStandings(w, r)
}

// writeStandings prints a report the way it's read out to players.
func writeStandings(w io.Writer, r *model.AnalysisRecord) error {
	fmt.Fprintf(w, "%s  %s  (%d vagas, inscrição %s)\n\n",
		r.TournamentLabel(),
		textutil.FormatDateTimeBR(r.CreatedAt, config.Location()),
		r.Config.SlotsSold,
		textutil.FormatBRL(r.Config.EntryFee))

	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tPLACE\tPLAYERS\tKILLS\tPRIZE")
	for i, e := range r.Entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n",
			i+1,
			textutil.FormatPlace(e.MatchResult.PlacementOrZero()),
			textutil.JoinNames(e.MatchResult.PlayerNames),
			e.MatchResult.KillsOrZero(),
			textutil.FormatBRL(e.Earnings.Total))
	}
	return tw.Flush()
}

func deleteReport(ctx context.Context, e *env, id string) error {
	if err := e.reports.Remove(ctx, id); err != nil {
		return fmt.Errorf("deleting report %s: %w", id, err)
	}
	fmt.Printf("deleted %s\n", id)
	return nil
}

// confirm asks prompt on out and reads a yes or no from in.
func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N] ", prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes", "s", "sim":
		return true
	}
	return false
}

func clearReports(ctx context.Context, e *env, yes bool) error {
	if !yes {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return errors.New("refusing to clear reports without --yes when stdin is not a terminal")
		}
		all, err := e.reports.GetAll(ctx)
		if err != nil {
			return err
		}
		if !confirm(os.Stdin, os.Stdout, fmt.Sprintf("Delete all %d reports?", len(all))) {
			fmt.Println("nothing deleted")
			return nil
		}
	}
	n, err := e.reports.Clear(ctx)
	if err != nil {
		return fmt.Errorf("clearing reports: %w", err)
	}
	fmt.Printf("deleted %d report(s)\n", n)
	return nil
}

func backupReports(ctx context.Context, e *env, out string) error {
	if out == "" || out == "-" {
		return e.reports.Backup(ctx, os.Stdout)
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := e.reports.Backup(ctx, f); err != nil {
		return fmt.Errorf("backing up reports: %w", err)
	}
	return f.Sync()
}

func restoreReports(ctx context.Context, e *env, in string) error {
	r := io.Reader(os.Stdin)
	if in != "" && in != "-" {
		f, err := os.Open(in)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	n, err := e.reports.Restore(ctx, r)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "restored %d report(s)\n", n)
	return nil
}

// parseAge reads an age like 90d or 36h.
func parseAge(s string) (time.Duration, error) {
	d, err := duration.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("can't parse age %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("age %q must be positive", s)
	}
	return time.Duration(d), nil
}

func purgeReports(ctx context.Context, e *env, olderThan string) error {
	age, err := parseAge(olderThan)
	if err != nil {
		return err
	}
	cutoff := clock.Now().Add(-age)
	n, err := e.reports.PurgeBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("purging reports: %w", err)
	}
	fmt.Printf("deleted %d report(s) created before %s\n", n, textutil.FormatDateTimeBR(cutoff, config.Location()))
	return nil
}

func relabelReport(ctx context.Context, e *env, id, label string) error {
	label = strings.TrimSpace(label)
	patch := &model.ReportPatch{Tournament: model.Some(label)}
	if label == "" {
		patch.Tournament = model.Null[string]()
	}
	r, err := e.reports.Update(ctx, id, patch)
	if err != nil {
		return fmt.Errorf("relabeling %s: %w", id, err)
	}
	if r == nil {
		return fmt.Errorf("relabeling %s: %w", id, state.ErrNotFound)
	}
	fmt.Printf("%s is now %q\n", id, r.TournamentLabel())
	return nil
}

func showSettings(ctx context.Context, e *env, w io.Writer) error {
	if err := e.settings.Hydrate(ctx); err != nil {
		return err
	}
	stored, err := e.settings.Current(ctx)
	if err != nil {
		return err
	}
	return writeJSON(w, struct {
		Settings *model.AppSettings      `json:"settings"`
		Resolved *model.ResolvedSettings `json:"resolved"`
	}{stored, stored.Resolve(e.settings.Defaults())})
}

// settingsFlags are the raw values of `settings set`.  Empty strings are
// flags that weren't given.
type settingsFlags struct {
	EntryFee    string
	Mode        string
	FixedProfit string
	KillPrize   string
	Prizes      []string
}

func parseMoney(name, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.Replace(strings.TrimSpace(s), ",", ".", 1))
	if err != nil {
		return decimal.Zero, fmt.Errorf("--%s: can't parse %q as an amount", name, s)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("--%s: %s is negative", name, s)
	}
	return d, nil
}

// parsePrizes reads rank=amount pairs.  An amount of "-" removes the rank.
func parsePrizes(pairs []string) (set map[int]decimal.Decimal, remove []int, err error) {
	set = map[int]decimal.Decimal{}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			return nil, nil, fmt.Errorf("--prize %q: want rank=amount", p)
		}
		rank, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil || rank < 1 {
			return nil, nil, fmt.Errorf("--prize %q: bad rank", p)
		}
		if strings.TrimSpace(v) == "-" {
			remove = append(remove, rank)
			continue
		}
		amount, err := parseMoney("prize", v)
		if err != nil {
			return nil, nil, err
		}
		set[rank] = amount
	}
	return set, remove, nil
}

// buildPatch turns flags into a patch over current.  Prize flags edit the
// current table rather than replace it.
func buildPatch(current *model.ResolvedSettings, f *settingsFlags) (*model.SettingsPatch, error) {
	patch := &model.SettingsPatch{}
	if f.EntryFee != "" {
		d, err := parseMoney("entry-fee", f.EntryFee)
		if err != nil {
			return nil, err
		}
		patch.EntryFee = model.Some(d)
	}
	if f.FixedProfit != "" {
		d, err := parseMoney("fixed-profit", f.FixedProfit)
		if err != nil {
			return nil, err
		}
		patch.FixedProfit = model.Some(d)
	}
	if f.Mode != "" {
		m := model.AdjustmentMode(f.Mode)
		if !m.Valid() {
			return nil, fmt.Errorf("--mode: want %s or %s, got %q", model.AdjustmentAuto, model.AdjustmentFixed, f.Mode)
		}
		patch.AdjustmentMode = model.Some(m)
	}
	if f.KillPrize != "" || len(f.Prizes) > 0 {
		rules := current.PrizeRules.Clone()
		if f.KillPrize != "" {
			d, err := parseMoney("kill-prize", f.KillPrize)
			if err != nil {
				return nil, err
			}
			rules.KillPrize = d
		}
		set, remove, err := parsePrizes(f.Prizes)
		if err != nil {
			return nil, err
		}
		for rank, amount := range set {
			rules.PlacementPrizes[rank] = amount
		}
		for _, rank := range remove {
			delete(rules.PlacementPrizes, rank)
		}
		patch.PrizeRules = model.Some(*rules)
	}
	if patch.Empty() {
		return nil, errors.New("nothing to set")
	}
	return patch, nil
}

func setSettings(ctx context.Context, e *env, f *settingsFlags) error {
	if err := e.settings.Hydrate(ctx); err != nil {
		return err
	}
	current, err := e.settings.Resolved(ctx)
	if err != nil {
		return err
	}
	patch, err := buildPatch(current, f)
	if err != nil {
		return err
	}
	saved, err := e.settings.Save(ctx, patch)
	if err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	fmt.Printf("settings saved, version %d\n", saved.Version)
	return nil
}
