package probe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shirou/gopsutil/v3/disk"
)

func TestMountProbe(t *testing.T) {
	dir := t.TempDir()
	mnt := filepath.Join(dir, "RPI-RP2")
	p := NewMountProbe(mnt)

	got, err := p.Present(context.Background())
	if err != nil || got.Present {
		t.Fatalf("absent: got %+v err %v", got, err)
	}
	if err := os.Mkdir(mnt, 0o755); err != nil {
		t.Fatal(err)
	}
	got, err = p.Present(context.Background())
	if err != nil || !got.Present || got.Device.Node != mnt || got.Device.Source != "mount" {
		t.Fatalf("present: got %+v err %v", got, err)
	}
}

func TestMountProbeCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMountProbe(t.TempDir()).Present(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestVolumeProbe(t *testing.T) {
	parts := []disk.PartitionStat{
		{Device: "/dev/sda1", Mountpoint: "/"},
		{Device: "/dev/sdb1", Mountpoint: ""},
		{Device: "/dev/sdc1", Mountpoint: "/media/pi/rpi-rp2"},
	}
	p := NewVolumeProbe("RPI-RP2")
	p.partitions = func(ctx context.Context, all bool) ([]disk.PartitionStat, error) { return parts, nil }

	got, err := p.Present(context.Background())
	if err != nil || !got.Present || got.Device.Node != "/dev/sdc1" {
		t.Fatalf("got %+v err %v", got, err)
	}

	p.partitions = func(ctx context.Context, all bool) ([]disk.PartitionStat, error) { return parts[:2], nil }
	got, err = p.Present(context.Background())
	if err != nil || got.Present {
		t.Fatalf("expected absent, got %+v err %v", got, err)
	}
}

func TestVolumeProbePartialEnumeration(t *testing.T) {
	boom := errors.New("permission denied")
	p := NewVolumeProbe("RPI-RP2")

	p.partitions = func(ctx context.Context, all bool) ([]disk.PartitionStat, error) {
		return []disk.PartitionStat{{Device: "/dev/sdc1", Mountpoint: "/run/media/u/RPI-RP2"}}, boom
	}
	got, err := p.Present(context.Background())
	if err != nil || !got.Present {
		t.Fatalf("a match wins over a partial error: got %+v err %v", got, err)
	}

	p.partitions = func(ctx context.Context, all bool) ([]disk.PartitionStat, error) { return nil, boom }
	if _, err := p.Present(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected enumeration error, got %v", err)
	}
}
