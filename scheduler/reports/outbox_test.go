package reports

import (
	"context"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verisched/verisched/common/stats"
	"github.com/verisched/verisched/scheduler/domain"
	"github.com/verisched/verisched/scheduler/jobserver"
)

func Test_Outbox_FlushInOrder(t *testing.T) {
	js := jobserver.NewMemoryServer()
	stat := stats.DefaultStatsReceiver()
	o := NewOutbox(NewMemoryStore(), js, Config{}, stat)

	require.NoError(t, o.Add(TaskStatus("task1", domain.TaskProcessing, false)))
	require.NoError(t, o.Add(Solution("task1", map[string]interface{}{"verdict": "unsafe"}, "")))
	require.NoError(t, o.Add(TaskStatus("task1", domain.TaskFinished, true)))
	require.NoError(t, o.Add(Error(domain.KindJob, "job1", "job exceeded its memory limit")))
	assert.Equal(t, 4, o.Len())

	delivered, err := o.Flush(context.Background())
	require.NoError(t, err)
	require.Len(t, delivered, 2)
	assert.Equal(t, "task/task1", delivered[0].Key())
	assert.Equal(t, "job/job1", delivered[1].Key())
	assert.Equal(t, 0, o.Len())

	subs := js.SubmissionsFor("task1")
	require.Len(t, subs, 3)
	assert.Equal(t, domain.TaskProcessing, subs[0].TaskStatus)
	assert.Equal(t, "unsafe", subs[1].Solution["verdict"])
	assert.Equal(t, domain.TaskFinished, subs[2].TaskStatus)
	st, _ := js.JobStatus("job1")
	assert.Equal(t, domain.Failed, st)

	stats.VerifyStats("Flush", stat, t, map[string]stats.Rule{
		stats.SchedReportsSentCounter: {Checker: stats.Int64EqTest, Value: 4},
	})
}

func Test_Outbox_KeepsFailedReports(t *testing.T) {
	js := jobserver.NewMemoryServer()
	stat := stats.DefaultStatsReceiver()
	o := NewOutbox(NewMemoryStore(), js, Config{}, stat)
	require.NoError(t, o.Add(JobStatus("job1", domain.Processing, false)))
	require.NoError(t, o.Add(JobStatus("job1", domain.Solved, true)))

	js.Fail(errors.New("connection refused"))
	delivered, err := o.Flush(context.Background())
	require.NoError(t, err)
	assert.Empty(t, delivered)
	assert.Equal(t, 2, o.Len())
	assert.Equal(t, 1, js.Calls(), "the later report of the same job waits")

	js.Fail(nil)
	delivered, err = o.Flush(context.Background())
	require.NoError(t, err)
	require.Len(t, delivered, 1)
	assert.Equal(t, domain.Solved, delivered[0].JobStatus)
	subs := js.SubmissionsFor("job1")
	require.Len(t, subs, 2)
	assert.Equal(t, domain.Processing, subs[0].JobStatus)
	assert.Equal(t, domain.Solved, subs[1].JobStatus)

	stats.VerifyStats("Retry", stat, t, map[string]stats.Rule{
		stats.SchedReportFailuresCounter: {Checker: stats.Int64EqTest, Value: 1},
		stats.SchedReportsSentCounter:    {Checker: stats.Int64EqTest, Value: 2},
	})
}

// failingTaskServer fails every task submission for one id.
type failingTaskServer struct {
	*jobserver.MemoryServer
	id    string
	err   error
	calls int
}

func (s *failingTaskServer) SubmitTaskStatus(ctx context.Context, id string, status domain.TaskStatus) error {
	if id == s.id {
		s.calls++
		return s.err
	}
	return s.MemoryServer.SubmitTaskStatus(ctx, id, status)
}

func (s *failingTaskServer) SubmitTaskError(ctx context.Context, id string, msg string) error {
	if id == s.id {
		s.calls++
		return s.err
	}
	return s.MemoryServer.SubmitTaskError(ctx, id, msg)
}

func Test_Outbox_FailureBlocksOnlyItsItem(t *testing.T) {
	js := &failingTaskServer{MemoryServer: jobserver.NewMemoryServer(), id: "bad", err: errors.New("connection reset")}
	o := NewOutbox(NewMemoryStore(), js, Config{}, nil)
	require.NoError(t, o.Add(Error(domain.KindTask, "bad", "verifier crashed")))
	require.NoError(t, o.Add(Error(domain.KindJob, "job1", "job exceeded its memory limit")))
	require.NoError(t, o.Add(TaskStatus("bad", domain.TaskCancelled, true)))
	require.NoError(t, o.Add(JobStatus("job2", domain.Solved, true)))

	for i := 0; i < 5; i++ {
		delivered, err := o.Flush(context.Background())
		require.NoError(t, err)
		if i == 0 {
			require.Len(t, delivered, 2)
			assert.Equal(t, "job/job1", delivered[0].Key())
			assert.Equal(t, "job/job2", delivered[1].Key())
		} else {
			assert.Empty(t, delivered)
		}
	}
	assert.Equal(t, 2, o.Len(), "both reports of the failing task wait")
	assert.Equal(t, 5, js.calls, "later reports of the failing task are not tried")
	st, _ := js.JobStatus("job1")
	assert.Equal(t, domain.Failed, st)
	st, _ = js.JobStatus("job2")
	assert.Equal(t, domain.Solved, st)

	js.err = nil
	js.id = ""
	delivered, err := o.Flush(context.Background())
	require.NoError(t, err)
	require.Len(t, delivered, 2)
	assert.Equal(t, domain.TaskCancelled, delivered[1].TaskStatus)
	assert.Equal(t, 0, o.Len())
}

func Test_Outbox_DropsRejectedReports(t *testing.T) {
	js := &failingTaskServer{
		MemoryServer: jobserver.NewMemoryServer(),
		id:           "bad",
		err:          errors.Wrap(jobserver.ErrRejected, "PATCH /tasks/bad/error: 400 Bad Request"),
	}
	stat := stats.DefaultStatsReceiver()
	o := NewOutbox(NewMemoryStore(), js, Config{}, stat)
	require.NoError(t, o.Add(Error(domain.KindTask, "bad", "verifier crashed")))
	require.NoError(t, o.Add(Error(domain.KindJob, "job1", "job exceeded its memory limit")))
	require.NoError(t, o.Add(JobStatus("job2", domain.Solved, true)))

	delivered, err := o.Flush(context.Background())
	require.NoError(t, err)
	assert.Len(t, delivered, 2)
	assert.Len(t, js.SubmissionsFor("job1"), 1)
	assert.Len(t, js.SubmissionsFor("job2"), 1)

	for i := 1; i < DefaultMaxRejections; i++ {
		assert.Equal(t, 1, o.Len())
		delivered, err = o.Flush(context.Background())
		require.NoError(t, err)
	}
	require.Len(t, delivered, 1, "a dropped terminal report still clears its item")
	assert.Equal(t, "task/bad", delivered[0].Key())
	assert.Equal(t, 0, o.Len())
	assert.Equal(t, DefaultMaxRejections, js.calls)

	stats.VerifyStats("Rejected", stat, t, map[string]stats.Rule{
		stats.SchedReportsDroppedCounter: {Checker: stats.Int64EqTest, Value: 1},
		stats.SchedReportsSentCounter:    {Checker: stats.Int64EqTest, Value: 2},
	})
}

func Test_Outbox_DropsUnknownItems(t *testing.T) {
	ctrl := gomock.NewController(t)
	js := jobserver.NewMockJobServer(ctrl)
	o := NewOutbox(NewMemoryStore(), js, Config{}, nil)

	require.NoError(t, o.Add(Error(domain.KindTask, "gone", "cancelled")))
	require.NoError(t, o.Add(TaskStatus("task2", domain.TaskCancelled, true)))

	gomock.InOrder(
		js.EXPECT().SubmitTaskError(gomock.Any(), "gone", "cancelled").
			Return(errors.Wrap(jobserver.ErrNotFound, "PATCH /tasks/gone/error")),
		js.EXPECT().SubmitTaskStatus(gomock.Any(), "task2", domain.TaskCancelled).Return(nil),
	)
	delivered, err := o.Flush(context.Background())
	require.NoError(t, err)
	assert.Len(t, delivered, 2, "a dropped terminal report still clears its item")
	assert.Equal(t, 0, o.Len())
}

func Test_Outbox_GivesUpAfterMaxAttempts(t *testing.T) {
	ctrl := gomock.NewController(t)
	js := jobserver.NewMockJobServer(ctrl)
	o := NewOutbox(NewMemoryStore(), js, Config{MaxAttempts: 2}, nil)
	require.NoError(t, o.Add(JobStatus("job1", domain.Cancelled, true)))

	js.EXPECT().SubmitJobStatus(gomock.Any(), "job1", domain.Cancelled).Return(errors.New("bad request")).Times(2)

	delivered, err := o.Flush(context.Background())
	require.NoError(t, err)
	assert.Empty(t, delivered)
	assert.Equal(t, 1, o.Len())

	delivered, err = o.Flush(context.Background())
	require.NoError(t, err)
	assert.Len(t, delivered, 1)
	assert.Equal(t, 0, o.Len())
}

func Test_Outbox_MaxPerFlush(t *testing.T) {
	js := jobserver.NewMemoryServer()
	o := NewOutbox(NewMemoryStore(), js, Config{MaxPerFlush: 2}, nil)
	for _, id := range []string{"t1", "t2", "t3"} {
		require.NoError(t, o.Add(TaskStatus(id, domain.TaskFinished, true)))
	}
	delivered, err := o.Flush(context.Background())
	require.NoError(t, err)
	assert.Len(t, delivered, 2)
	assert.Equal(t, 1, o.Len())
}

func Test_Send_UnknownKind(t *testing.T) {
	err := Send(context.Background(), jobserver.NewMemoryServer(), Report{Kind: Kind(7), ItemID: "x"})
	assert.Error(t, err)
	assert.Equal(t, "Kind(7)", Kind(7).String())
}
