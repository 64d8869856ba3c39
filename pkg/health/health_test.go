package health

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAggregate(t *testing.T) {
	okClient := ClientHealth{Connected: true}
	okDiscovery := DiscoverySnapshot{Controllers: 2, Scheduled: 3}
	okSchedules := ScheduleSnapshot{Count: 3}
	runningWorker := &WorkerSnapshot{IsInitialized: true, IsRunning: true, IsHealthy: true, TaskQueue: "orders"}

	cases := []struct {
		name      string
		client    ClientHealth
		worker    *WorkerSnapshot
		schedules ScheduleSnapshot
		discovery DiscoverySnapshot
		want      Status
	}{
		{
			name:   "everything healthy",
			client: okClient, worker: runningWorker, schedules: okSchedules, discovery: okDiscovery,
			want: StatusHealthy,
		},
		{
			name:   "client down trumps everything",
			client: ClientHealth{Connected: false},
			worker: runningWorker, schedules: okSchedules, discovery: okDiscovery,
			want: StatusUnhealthy,
		},
		{
			name:   "initialized worker not running is unhealthy",
			client: okClient,
			worker: &WorkerSnapshot{IsInitialized: true, IsRunning: false, IsHealthy: true, TaskQueue: "orders"},
			schedules: okSchedules, discovery: okDiscovery,
			want: StatusUnhealthy,
		},
		{
			name:   "running but unhealthy worker degrades",
			client: okClient,
			worker: &WorkerSnapshot{IsInitialized: true, IsRunning: true, IsHealthy: false, TaskQueue: "orders"},
			schedules: okSchedules, discovery: okDiscovery,
			want: StatusDegraded,
		},
		{
			name:   "no worker configured can still be healthy",
			client: okClient, worker: nil, schedules: okSchedules, discovery: okDiscovery,
			want: StatusHealthy,
		},
		{
			name:   "controllers without scheduled workflows degrade",
			client: okClient, worker: runningWorker, schedules: okSchedules,
			discovery: DiscoverySnapshot{Controllers: 2, Scheduled: 0},
			want:      StatusDegraded,
		},
		{
			name:   "schedule errors degrade",
			client: okClient, worker: runningWorker,
			schedules: ScheduleSnapshot{Count: 3, Errors: 1},
			discovery: okDiscovery,
			want:      StatusDegraded,
		},
		{
			name:   "client down wins over soft signals",
			client: ClientHealth{Connected: false},
			worker: &WorkerSnapshot{IsInitialized: true, IsRunning: true, IsHealthy: false},
			schedules: ScheduleSnapshot{Errors: 5},
			discovery: DiscoverySnapshot{Controllers: 1, Scheduled: 0},
			want:      StatusUnhealthy,
		},
		{
			name:   "configured but never initialized worker contributes nothing",
			client: okClient,
			worker: &WorkerSnapshot{IsInitialized: false, IsRunning: false, IsHealthy: true},
			schedules: okSchedules, discovery: okDiscovery,
			want: StatusHealthy,
		},
		{
			name:   "no controllers at all is healthy",
			client: okClient, worker: nil, schedules: ScheduleSnapshot{},
			discovery: DiscoverySnapshot{},
			want:      StatusHealthy,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Aggregate(tc.client, tc.worker, tc.schedules, tc.discovery)
			require.Equal(t, tc.want, got.Status)

			// pure and idempotent: same snapshots, same result
			again := Aggregate(tc.client, tc.worker, tc.schedules, tc.discovery)
			require.Equal(t, got, again)
		})
	}
}

func TestAggregateWorkerContribution(t *testing.T) {
	client := ClientHealth{Connected: true}

	t.Run("absent worker reported not_available", func(t *testing.T) {
		r := Aggregate(client, nil, ScheduleSnapshot{}, DiscoverySnapshot{})
		require.Equal(t, StatusNotAvailable, r.Worker)
		require.Equal(t, StatusHealthy, r.Status)
	})

	t.Run("running worker reported healthy", func(t *testing.T) {
		r := Aggregate(client, &WorkerSnapshot{IsInitialized: true, IsRunning: true, IsHealthy: true}, ScheduleSnapshot{}, DiscoverySnapshot{})
		require.Equal(t, StatusHealthy, r.Worker)
	})

	t.Run("details explain the verdict", func(t *testing.T) {
		r := Aggregate(ClientHealth{Connected: false}, nil, ScheduleSnapshot{}, DiscoverySnapshot{})
		require.NotEmpty(t, r.Details)
	})
}
