package collector

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ctesting "github.com/Guliveer/vitalis/sampler/internal/collector/testing"
	serrors "github.com/Guliveer/vitalis/sampler/internal/errors"
	"github.com/Guliveer/vitalis/sampler/internal/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want serrors.Kind
	}{
		{"deadline", fmt.Errorf("read: %w", context.DeadlineExceeded), serrors.KindTimeout},
		{"permission", &fs.PathError{Op: "open", Path: "/proc/x", Err: fs.ErrPermission}, serrors.KindPermissionDenied},
		{"missing", &fs.PathError{Op: "open", Path: "/sys/x", Err: fs.ErrNotExist}, serrors.KindResourceUnavailable},
		{"not implemented", errors.New("not implemented yet"), serrors.KindUnsupportedPlatform},
		{"other", errors.New("ioctl failed"), serrors.KindAPICallFailed},
		{"already classified", serrors.New(serrors.KindInvalidData, "memory", "bad"), serrors.KindInvalidData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, serrors.KindOf(Classify("op", tt.err)))
		})
	}
	assert.NoError(t, Classify("op", nil))
}

func TestGather_AllSucceed(t *testing.T) {
	p := ctesting.NewFakeProvider()
	s := Gather(context.Background(), p, time.Second)

	require.True(t, s.Complete())
	assert.NoError(t, s.Err())
	assert.Len(t, s.Processor.Cores, 4)
	assert.InDelta(t, 25.0, s.Processor.Overall, 1e-9)
	assert.Equal(t, "fake-host", s.Host.Hostname)
	assert.Len(t, s.Storage, 1)
	for _, c := range models.Categories {
		assert.Equal(t, 1, p.Calls(c), c.String())
	}
}

func TestGather_CategoryFailureIsolated(t *testing.T) {
	p := ctesting.NewFakeProvider().
		SetFail(models.CategoryStorage, errors.New("statfs failed"))
	s := Gather(context.Background(), p, time.Second)

	assert.False(t, s.Complete())
	require.Contains(t, s.Failed, models.CategoryStorage)
	assert.Equal(t, serrors.KindAPICallFailed, serrors.KindOf(s.Failed[models.CategoryStorage]))
	assert.Equal(t, "fake-host", s.Host.Hostname)
	assert.Equal(t, uint64(16<<30), s.Memory.Total)
}

func TestGather_CancelledContextIssuesNoFetch(t *testing.T) {
	p := ctesting.NewFakeProvider()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := Gather(ctx, p, time.Second)
	assert.Len(t, s.Failed, len(models.Categories))
	assert.Equal(t, 0, p.TotalCalls())
}

func TestGather_FetchTimeout(t *testing.T) {
	p := ctesting.NewFakeProvider()
	p.SetBlocking(true)

	s := Gather(context.Background(), p, 20*time.Millisecond)
	assert.Equal(t, serrors.KindTimeout, serrors.Dominant(s.Err()))
}

func TestGather_ZeroCores(t *testing.T) {
	p := ctesting.NewFakeProvider()
	p.Cores = nil
	s := Gather(context.Background(), p, 0)
	assert.True(t, s.Complete())
	assert.Equal(t, 0.0, s.Processor.Overall)
}

func TestParseKeyValueFile(t *testing.T) {
	fields := parseKeyValueFile("# comment\nNAME=\"Ubuntu\"\n\nVERSION_ID=\"22.04\"\nBROKEN\n")
	assert.Equal(t, `"Ubuntu"`, fields["NAME"])
	assert.Equal(t, `"22.04"`, fields["VERSION_ID"])
	assert.NotContains(t, fields, "BROKEN")
}

func TestVolumeName(t *testing.T) {
	assert.Equal(t, "sda1", volumeName("/dev/sda1", "/"))
	assert.Equal(t, "/mnt/data", volumeName("", "/mnt/data"))
	assert.Equal(t, "C:", volumeName("C:", `C:\`))
}

func TestReleaseCache_RetriesUntilKnown(t *testing.T) {
	calls := 0
	c := &releaseCache{lookup: func(context.Context) osRelease {
		calls++
		if calls == 1 {
			return osRelease{Name: "Linux", Version: unknownVersion}
		}
		return osRelease{Name: "Debian", Version: "12"}
	}}

	assert.Equal(t, unknownVersion, c.get(context.Background()).Version)
	assert.Equal(t, "12", c.get(context.Background()).Version)
	assert.Equal(t, "12", c.get(context.Background()).Version)
	assert.Equal(t, 2, calls)
}
