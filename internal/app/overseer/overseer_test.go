package overseer

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"hivescan/internal/app/accountpool"
	"hivescan/internal/app/accountset"
	"hivescan/internal/app/pacing"
	"hivescan/internal/app/scheduler"
	"hivescan/internal/app/stats"
	"hivescan/internal/app/status"
	"hivescan/internal/app/worker"
	"hivescan/internal/domain/account"
	"hivescan/internal/domain/geo"
	"hivescan/internal/domain/hashkey"
)

var center = geo.Coord{Lat: 35.6586, Lng: 139.7454}

// newStepper returns an overseer with one spawned hive, ready for Step.
func newStepper(clock *testClock, hives ...*stubScheduler) *Overseer {
	o := &Overseer{
		Config:  Config{Workers: len(hives), StepLimit: 3, Method: "hexsearch", VersionInterval: time.Minute, APIVersion: "0.57.2"},
		Status:  status.NewRegistry(),
		Sleeper: &pacing.RecordingSleeper{},
		Now:     clock.Now,
	}
	for _, h := range hives {
		o.hives = append(o.hives, h)
	}
	return o
}

func TestStep_FailedVersionCheckPausesUntilSuccess(t *testing.T) {
	clock := newTestClock()
	hive := &stubScheduler{}
	versions := &stubVersions{errs: []error{errors.New("proxy refused")}, answers: []string{"", "0.45.0"}}
	o := newStepper(clock, hive)
	o.Versions = versions

	o.Step(context.Background())
	if !o.Paused() {
		t.Fatalf("expected pause after a failed check")
	}

	clock.Advance(30 * time.Second)
	o.Step(context.Background())
	if versions.calls != 1 {
		t.Fatalf("expected no recheck within the interval, got %d checks", versions.calls)
	}
	if !o.Paused() {
		t.Fatalf("expected pause to hold without a successful check")
	}
	if hive.paused != 1 {
		t.Fatalf("expected the hive told about the pause, got %d", hive.paused)
	}

	clock.Advance(31 * time.Second)
	o.Step(context.Background())
	if o.Paused() {
		t.Fatalf("expected a successful check to resume scanning")
	}
}

func TestStep_ForcedNewerVersionPauses(t *testing.T) {
	clock := newTestClock()
	o := newStepper(clock, &stubScheduler{})
	o.Versions = &stubVersions{answers: []string{"0.59.1"}}

	o.Step(context.Background())

	if !o.Paused() {
		t.Fatalf("expected pause on a forced update")
	}
	if !o.Status.Overseer().Paused {
		t.Fatalf("expected paused overseer status")
	}
}

func TestStep_VersionCheckKeepsOperatorPause(t *testing.T) {
	clock := newTestClock()
	o := newStepper(clock, &stubScheduler{})
	o.Versions = &stubVersions{answers: []string{"0.45.0"}}
	o.SetPaused(true)

	o.Step(context.Background())

	if !o.Paused() {
		t.Fatalf("expected the operator pause to hold")
	}
	o.SetPaused(false)
	if o.Paused() {
		t.Fatalf("expected resume to clear the pause")
	}
}

func TestStep_OnDemandTimeoutPausesUntilHeartbeat(t *testing.T) {
	clock := newTestClock()
	hive := &stubScheduler{refresh: true}
	o := newStepper(clock, hive)
	o.Config.OnDemandTimeout = time.Minute

	o.Step(context.Background())
	if o.Paused() {
		t.Fatalf("expected no pause before the timeout")
	}

	clock.Advance(2 * time.Minute)
	o.Step(context.Background())
	if !o.Paused() {
		t.Fatalf("expected pause after inactivity")
	}
	if hive.schedules != 1 {
		t.Fatalf("expected no refill while paused, got %d", hive.schedules)
	}

	o.Heartbeat()
	if o.Paused() {
		t.Fatalf("expected heartbeat to resume")
	}
	o.Step(context.Background())
	if hive.schedules != 2 {
		t.Fatalf("expected refill after resume, got %d", hive.schedules)
	}
}

func TestHeartbeat_DoesNotLiftVersionPause(t *testing.T) {
	clock := newTestClock()
	o := newStepper(clock, &stubScheduler{})
	o.Versions = &stubVersions{errs: []error{errors.New("timeout")}}

	o.Step(context.Background())
	o.Heartbeat()

	if !o.Paused() {
		t.Fatalf("expected the version pause to survive a heartbeat")
	}
}

func TestSetLocation_LatestWins(t *testing.T) {
	clock := newTestClock()
	first, second := &stubScheduler{}, &stubScheduler{}
	o := newStepper(clock, first, second)

	o.SetLocation(geo.Coord{Lat: 1, Lng: 1})
	o.SetLocation(center)
	o.Step(context.Background())

	if len(first.moves) != 1 || len(second.moves) != 1 {
		t.Fatalf("expected one move per hive, got %d and %d", len(first.moves), len(second.moves))
	}
	if first.moves[0] != center {
		t.Fatalf("expected first hive at %v, got %v", center, first.moves[0])
	}
	want := geo.HiveLocations(center, scheduler.StepDistance, 3, 2)[1]
	if second.moves[0] != want {
		t.Fatalf("expected second hive at %v, got %v", want, second.moves[0])
	}

	o.Step(context.Background())
	if len(first.moves) != 1 {
		t.Fatalf("expected no move without a new location, got %d", len(first.moves))
	}
}

func TestStep_RefillsAndBacksOffOnError(t *testing.T) {
	clock := newTestClock()
	hive := &stubScheduler{refresh: true, scheduleErr: errors.New("deadlock")}
	o := newStepper(clock, hive)
	sleeper := o.Sleeper.(*pacing.RecordingSleeper)

	o.Step(context.Background())

	if hive.schedules != 1 {
		t.Fatalf("expected one schedule call, got %d", hive.schedules)
	}
	if sleeper.Count(ScheduleBackoff) != 1 {
		t.Fatalf("expected a backoff after the failure, got %v", sleeper.Delays())
	}
	if msg := o.Status.Overseer().Message; msg != "Search queue 0 empty, scheduling more items to scan." {
		t.Fatalf("unexpected overseer message %q", msg)
	}
}

func TestStep_StatsLine(t *testing.T) {
	clock := newTestClock()
	hive := &stubScheduler{message: "Scanning 7 steps."}
	o := newStepper(clock, hive)
	o.Stats = stats.NewAggregator(4, clock.Now)
	o.Stats.Apply(stats.Update{WorkerID: "000", Username: "a", Delta: stats.Delta{Success: 3, Captcha: 1}})
	o.Pool = accountpool.New([]*account.Account{account.New(account.Credentials{Username: "a"})}, time.Hour)

	o.Step(context.Background())

	st := o.Status.Overseer()
	want := "Scanning 7 steps.\n" + o.Stats.Message(0)
	if st.Message != want {
		t.Fatalf("expected %q, got %q", want, st.Message)
	}
	if st.Method != "hexsearch" || st.AccountsFailed != 0 {
		t.Fatalf("unexpected overseer status %+v", st)
	}
}

func TestStep_SchedulerWebhookOnlyOnGrowth(t *testing.T) {
	clock := newTestClock()
	hive := &stubScheduler{stats: scheduler.Stats{TTHFound: 12.5, SpawnsFound: 40}}
	o := newStepper(clock, hive)
	o.Config.SchedulerUpdates = true
	o.Config.StatusName = "north"
	hooks := &recordingWebhook{}
	o.Webhook = hooks

	o.Step(context.Background())
	o.Step(context.Background())
	hive.mu.Lock()
	hive.stats.TTHFound = 12.505
	hive.mu.Unlock()
	o.Step(context.Background())

	if len(hooks.payloads) != 1 {
		t.Fatalf("expected a single scheduler webhook, got %d", len(hooks.payloads))
	}
	if hooks.payloads[0]["instance"] != "north" || hooks.payloads[0]["tth_found"] != 12.5 {
		t.Fatalf("unexpected payload %v", hooks.payloads[0])
	}
}

func TestTune_TogglesSchedulerUpdates(t *testing.T) {
	clock := newTestClock()
	hive := &stubScheduler{stats: scheduler.Stats{TTHFound: 12.5}}
	o := newStepper(clock, hive)
	hooks := &recordingWebhook{}
	o.Webhook = hooks

	o.Step(context.Background())
	if len(hooks.payloads) != 0 {
		t.Fatalf("expected no webhook while updates are off, got %d", len(hooks.payloads))
	}
	o.Tune(0, true)
	o.Step(context.Background())
	if len(hooks.payloads) != 1 {
		t.Fatalf("expected a webhook after tuning, got %d", len(hooks.payloads))
	}
}

func TestUpsertHashKeys_KeepsStoredPeak(t *testing.T) {
	clock := newTestClock()
	o := newStepper(clock)
	keys := hashkey.NewScheduler([]string{"k1", "k2"})
	if err := keys.Observe(hashkey.Status{Token: "k1", Remaining: 100, Maximum: 150}, clock.Now()); err != nil {
		t.Fatalf("observe: %v", err)
	}
	if err := keys.Observe(hashkey.Status{Token: "k2", Remaining: 140, Maximum: 150}, clock.Now()); err != nil {
		t.Fatalf("observe: %v", err)
	}
	o.HashKeys = keys
	o.HashRepo = stubHashRepo{peaks: map[string]int{"k2": 90}}
	sink := &recordingSink{}
	o.Sink = sink

	o.Step(context.Background())
	clock.Advance(time.Second)
	o.Step(context.Background())

	if len(sink.batches) != 1 {
		t.Fatalf("expected one upsert within the interval, got %d", len(sink.batches))
	}
	if got := sink.batches[0]["k1"].(hashkey.Budget).Peak; got != 50 {
		t.Fatalf("expected k1 peak 50, got %d", got)
	}
	if got := sink.batches[0]["k2"].(hashkey.Budget).Peak; got != 90 {
		t.Fatalf("expected k2 stored peak 90, got %d", got)
	}

	clock.Advance(HashUpsertInterval)
	o.Step(context.Background())
	if len(sink.batches) != 2 {
		t.Fatalf("expected a second upsert, got %d", len(sink.batches))
	}
}

func TestRun_SpawnsWorkersPerHive(t *testing.T) {
	clock := newTestClock()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hives := []*stubScheduler{{}, {}, {}}
	pool := accountpool.New(nil, time.Hour)
	var steps atomic.Int32
	hl := []*account.Account{account.New(account.Credentials{Username: "hl1"})}
	o := &Overseer{
		Config:            Config{Workers: 5, WorkersPerHive: 2, Beehive: true, StepLimit: 3, NoVersionCheck: true},
		Pool:              pool,
		HighLevel:         accountset.New(0),
		HighLevelAccounts: hl,
		Schedulers:        fixedHives(hives...),
		Stats:             stats.NewAggregator(8, clock.Now),
		Status:            status.NewRegistry(),
		Sleeper: &pacing.RecordingSleeper{OnSleep: func(time.Duration) {
			if steps.Add(1) == 3 {
				cancel()
			}
		}},
		Now: clock.Now,
	}
	o.NewWorker = func(id string, hive int, sched scheduler.Scheduler) *worker.Worker {
		return &worker.Worker{ID: id, Hive: hive, Accounts: pool, Scheduler: sched, Now: clock.Now}
	}

	if err := o.Run(ctx); err != nil {
		t.Fatalf("expected clean shutdown, got %v", err)
	}

	if got := len(o.Hives()); got != 3 {
		t.Fatalf("expected 3 hives, got %d", got)
	}
	workers := o.Workers()
	if len(workers) != 5 {
		t.Fatalf("expected 5 workers, got %d", len(workers))
	}
	if workers[4].ID != "004" || workers[4].Hive != 2 || workers[1].Hive != 0 {
		t.Fatalf("unexpected worker layout: %s in hive %d, worker 1 in hive %d", workers[4].ID, workers[4].Hive, workers[1].Hive)
	}
	if o.HighLevel.Size(worker.HighLevelSet) != 1 {
		t.Fatalf("expected the high level set created")
	}
	if len(o.Status.Snapshot().Workers) != 5 {
		t.Fatalf("expected a status row per worker")
	}
}

func TestRun_RejectsZeroWorkers(t *testing.T) {
	o := &Overseer{}
	if err := o.Run(context.Background()); !errors.Is(err, ErrNoWorkers) {
		t.Fatalf("expected ErrNoWorkers, got %v", err)
	}
}

func TestVersionLess(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"0.57.2", "0.59.1", true},
		{"0.59.1", "0.57.2", false},
		{"0.57", "0.57.0", false},
		{"0.57", "0.57.1", true},
		{"v1.2.3", "1.2.3", false},
	}
	for _, c := range cases {
		got, err := versionLess(c.a, c.b)
		if err != nil {
			t.Fatalf("versionLess(%q, %q): %v", c.a, c.b, err)
		}
		if got != c.want {
			t.Fatalf("versionLess(%q, %q): expected %v, got %v", c.a, c.b, c.want, got)
		}
	}
	if _, err := versionLess("0.57.x", "0.57.1"); err == nil {
		t.Fatalf("expected an error for a malformed version")
	}
}
