package checkpoint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/endlessm/eos-updater/ostreerepo"
)

func boot() ostreerepo.Refspec {
	return ostreerepo.Refspec{Remote: "eos", Ref: "os/eos/amd64/eos3"}
}

func zeroChecksum() ostreerepo.Checksum { return ostreerepo.Checksum{} }

func TestDecideFollowsValidCheckpointWhenNoMaintenance(t *testing.T) {
	d := &Decider{
		NewerOnBootedRef: func(ctx context.Context, booted ostreerepo.Refspec, cp ostreerepo.Checksum) (bool, error) {
			return false, nil
		},
	}
	dec, err := d.Decide(context.Background(), boot(), zeroChecksum(), "os/eos/amd64/eos4")
	require.NoError(t, err)
	require.True(t, dec.Follow)
	require.Equal(t, ostreerepo.Refspec{Remote: "eos", Ref: "os/eos/amd64/eos4"}, dec.UpgradeRefspec)
}

func TestDecideRefusesWhenMaintenanceContinuesOnOldBranch(t *testing.T) {
	d := &Decider{
		NewerOnBootedRef: func(ctx context.Context, booted ostreerepo.Refspec, cp ostreerepo.Checksum) (bool, error) {
			return true, nil
		},
	}
	dec, err := d.Decide(context.Background(), boot(), zeroChecksum(), "os/eos/amd64/eos4")
	require.NoError(t, err)
	require.False(t, dec.Follow)
}

func TestDecideWarnsAndRefusesOnMalformedTarget(t *testing.T) {
	d := &Decider{
		NewerOnBootedRef: func(ctx context.Context, booted ostreerepo.Refspec, cp ostreerepo.Checksum) (bool, error) {
			return false, nil
		},
	}
	dec, err := d.Decide(context.Background(), boot(), zeroChecksum(), "$^^@*invalid")
	require.NoError(t, err)
	require.False(t, dec.Follow)
	require.Contains(t, dec.Warning, "Failed to parse eos.checkpoint-target ref")
}

func TestDecideVetoedByGate(t *testing.T) {
	d := &Decider{
		NewerOnBootedRef: func(ctx context.Context, booted ostreerepo.Refspec, cp ostreerepo.Checksum) (bool, error) {
			return false, nil
		},
		Gates: []Gate{&DenylistGate{
			GateName: "dmi-vendor",
			Denylist: []string{"AcmeCorp"},
			Read:     func() (string, error) { return "AcmeCorp", nil },
		}},
	}
	dec, err := d.Decide(context.Background(), boot(), zeroChecksum(), "os/eos/amd64/eos4")
	require.NoError(t, err)
	require.False(t, dec.Follow)
}

func TestDecideOverrideBypassesGates(t *testing.T) {
	t.Setenv("EOS_UPDATER_FORCE_CHECKPOINT", "1")
	d := &Decider{
		NewerOnBootedRef: func(ctx context.Context, booted ostreerepo.Refspec, cp ostreerepo.Checksum) (bool, error) {
			return false, nil
		},
		Gates: []Gate{&DenylistGate{
			GateName: "dmi-vendor",
			Denylist: []string{"AcmeCorp"},
			Read:     func() (string, error) { return "AcmeCorp", nil },
		}},
		OverrideEnvVar: "EOS_UPDATER_FORCE_CHECKPOINT",
	}
	dec, err := d.Decide(context.Background(), boot(), zeroChecksum(), "os/eos/amd64/eos4")
	require.NoError(t, err)
	require.True(t, dec.Follow)
}

func TestDecideStripsDifferingRemotePrefix(t *testing.T) {
	d := &Decider{
		NewerOnBootedRef: func(ctx context.Context, booted ostreerepo.Refspec, cp ostreerepo.Checksum) (bool, error) {
			return false, nil
		},
	}
	dec, err := d.Decide(context.Background(), boot(), zeroChecksum(), "otherremote:os/eos/amd64/eos4")
	require.NoError(t, err)
	require.True(t, dec.Follow)
	require.Equal(t, "eos", dec.UpgradeRefspec.Remote)
	require.Contains(t, dec.Warning, "differs from booted remote")
}

func TestRefGlobGateVetoesMismatch(t *testing.T) {
	g := &RefGlobGate{SourceGlob: "os/eos/amd64/eos3", TargetGlob: "os/eos/amd64/eos4"}
	veto, err := g.Veto(context.Background(), boot(), ostreerepo.Refspec{Remote: "eos", Ref: "os/eos/amd64/eos9"})
	require.NoError(t, err)
	require.True(t, veto)
}
