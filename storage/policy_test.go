package storage

import (
	"bytes"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRead(t *testing.T, m *Manager, ids ...uint32) {
	t.Helper()
	for _, id := range ids {
		_, err := m.Read(id)
		require.NoError(t, err, "read %d", id)
	}
}

func mustWrite(t *testing.T, m *Manager, ids ...uint32) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, m.Write(id, pageOf(byte(id))), "write %d", id)
	}
}

func resident(m *Manager, id uint32) bool {
	f := m.Frame(id)
	return f != nil && f.Resident()
}

func ghost(m *Manager, id uint32) bool {
	f := m.Frame(id)
	return f != nil && !f.Resident()
}

func TestLRUMatchesOracle(t *testing.T) {
	const capacity = 10
	oracle, err := simplelru.NewLRU[uint32, struct{}](capacity, nil)
	require.NoError(t, err)
	m := newTestManager(t, NewMemoryDevice(testPageSize), capacity, NewLRUPolicy())

	r := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 2000; i++ {
		id := uint32(r.IntN(40))
		want := oracle.Contains(id)
		got := resident(m, id)
		require.Equal(t, want, got, "step %d page %d", i, id)

		oracle.Add(id, struct{}{})
		if r.IntN(4) == 0 {
			mustWrite(t, m, id)
		} else {
			mustRead(t, m, id)
		}
	}
	assert.Equal(t, capacity, m.Resident())
	assert.Equal(t, capacity, m.Tracked())
}

func TestCFLRUPrefersCleanVictims(t *testing.T) {
	dev := NewMemoryDevice(testPageSize)
	p := NewCFLRUPolicy(0.5)
	m := newTestManager(t, dev, 4, p)
	assert.Equal(t, 2, p.Window())

	mustWrite(t, m, 1)
	mustRead(t, m, 2, 3, 4)
	mustRead(t, m, 5)

	assert.Nil(t, m.Frame(2), "clean page inside the window goes first")
	assert.True(t, resident(m, 1))
	assert.Zero(t, dev.WriteCount())
}

func TestCFLRUFallsBackToDirtyVictim(t *testing.T) {
	dev := NewMemoryDevice(testPageSize)
	m := newTestManager(t, dev, 2, NewCFLRUPolicy(0.5))

	mustWrite(t, m, 1, 2)
	mustRead(t, m, 3)

	assert.Nil(t, m.Frame(1))
	assert.Equal(t, uint64(1), dev.WriteCount())

	_, err := NewManager(nil, 2, NewCFLRUPolicy(1.5))
	assert.True(t, IsErrorCode(err, ErrCodeInvalidConfig))
}

func TestLIRSGhostHitPromotes(t *testing.T) {
	p := NewLIRSPolicy(0.2, 1)
	m := newTestManager(t, NewMemoryDevice(testPageSize), 3, p)
	lir, hir := p.Limits()
	require.Equal(t, 2, lir)
	require.Equal(t, 1, hir)

	mustRead(t, m, 1, 2, 3, 4)
	assert.True(t, ghost(m, 3), "resident HIR page 3 is evicted but remembered")
	assert.False(t, lirsOf(m.Frame(4)).lir)

	mustRead(t, m, 3)
	assert.True(t, lirsOf(m.Frame(3)).lir, "ghost hit in the stack makes page 3 LIR")
	assert.True(t, lirsOf(m.Frame(2)).lir)
	assert.False(t, lirsOf(m.Frame(1)).lir, "the bottom LIR page is demoted")
	assert.True(t, resident(m, 1))
	assert.True(t, ghost(m, 4))
}

func TestLIRSGhostLimit(t *testing.T) {
	p := NewLIRSPolicy(0.5, 0)
	m := newTestManager(t, NewMemoryDevice(testPageSize), 4, p)

	mustRead(t, m, 1, 2, 3, 4, 5, 6, 7)
	assert.Equal(t, m.Resident(), m.Tracked(), "no ghosts are kept with ghost ratio 0")

	_, err := NewManager(nil, 4, NewLIRSPolicy(1, 1))
	assert.True(t, IsErrorCode(err, ErrCodeInvalidConfig))
}

func TestFLIRSGhostRereadPromotes(t *testing.T) {
	p := NewFLIRSPolicy(1, 0.2, 1)
	m := newTestManager(t, NewMemoryDevice(testPageSize), 3, p)
	lir, hir := p.Limits()
	require.Equal(t, 2, lir)
	require.Equal(t, 1, hir)

	mustRead(t, m, 1, 2, 3, 4)
	assert.True(t, ghost(m, 3))

	mustRead(t, m, 3)
	assert.True(t, flirsOf(m.Frame(3)).lir[AccessRead], "ghost re-read in the read stack makes page 3 LIR")
	assert.True(t, flirsOf(m.Frame(2)).lir[AccessRead])
	assert.False(t, flirsOf(m.Frame(1)).lir[AccessRead], "the bottom read-LIR page is demoted")
	assert.True(t, resident(m, 1))
	assert.True(t, ghost(m, 4))
	reads, writes := p.StackSizes()
	assert.Equal(t, 3, reads)
	assert.Zero(t, writes)
}

func TestFLIRSRewriteProtectsUntilFlush(t *testing.T) {
	dev := NewMemoryDevice(testPageSize)
	p := NewFLIRSPolicy(1, 0.25, 1)
	m := newTestManager(t, dev, 4, p)

	mustRead(t, m, 1, 2, 3)
	mustWrite(t, m, 4, 4)
	e := flirsOf(m.Frame(4))
	assert.True(t, e.lir[AccessWrite], "a rewrite in the write stack protects page 4")
	assert.False(t, flirsOf(m.Frame(1)).lir[AccessRead])

	mustRead(t, m, 5)
	assert.Nil(t, m.Frame(1), "the demoted clean page is the victim")
	assert.True(t, resident(m, 4))
	assert.Zero(t, dev.WriteCount())

	require.NoError(t, m.Flush())
	assert.False(t, e.lir[AccessWrite], "a flushed page loses write protection")
	assert.True(t, e.qH.Valid())
	assert.Equal(t, uint64(1), dev.WriteCount())
}

func TestFLIRSCostRatioPicksDemotedStack(t *testing.T) {
	tests := []struct {
		name      string
		readCost  float64
		writeCost float64
		readKept  bool
	}{
		{"equal costs demote a read", 1, 1, false},
		{"costly writes demote a read", 1, 4, false},
		{"cheap writes demote a write", 2, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.ReadCost = tt.readCost
			cfg.WriteCost = tt.writeCost
			p, err := NewPolicy("flirs", []string{"0.25"}, cfg)
			require.NoError(t, err)
			m := newTestManager(t, NewMemoryDevice(testPageSize), 4, p)

			mustWrite(t, m, 1)
			mustRead(t, m, 2, 3)
			mustWrite(t, m, 4, 4)

			assert.True(t, flirsOf(m.Frame(4)).lir[AccessWrite])
			assert.Equal(t, tt.readKept, flirsOf(m.Frame(2)).lir[AccessRead], "read-LIR page 2")
			assert.Equal(t, !tt.readKept, flirsOf(m.Frame(1)).lir[AccessWrite], "write-LIR page 1")
		})
	}
}

func TestFLIRSValidation(t *testing.T) {
	m := newTestManager(t, NewMemoryDevice(testPageSize), 4, NewFLIRSPolicy(1, 0.5, 0))
	mustRead(t, m, 1, 2, 3, 4, 5, 6, 7)
	assert.Equal(t, m.Resident(), m.Tracked(), "no ghosts are kept with ghost ratio 0")

	for _, p := range []*FLIRSPolicy{
		NewFLIRSPolicy(0, 0.1, 1),
		NewFLIRSPolicy(1, 1, 1),
		NewFLIRSPolicy(1, 0.1, -1),
	} {
		_, err := NewManager(nil, 4, p)
		assert.True(t, IsErrorCode(err, ErrCodeInvalidConfig), p.Description())
	}
	_, err := NewManager(nil, 1, NewFLIRSPolicy(1, 0.1, 1))
	assert.True(t, IsErrorCode(err, ErrCodeInvalidConfig))
}

func TestTwoQPromotesRemembered(t *testing.T) {
	p := NewTwoQPolicy(0.25, 0.5)
	m := newTestManager(t, NewMemoryDevice(testPageSize), 4, p)

	mustRead(t, m, 1, 2, 3, 4, 5)
	require.True(t, ghost(m, 1))

	mustRead(t, m, 1)
	assert.Equal(t, twoQMain, p.q.Route(m.Frame(1).handle))
	assert.True(t, ghost(m, 2))
	assert.Equal(t, 1, p.q.BackSize(twoQIn))

	// A1in is FIFO, so a hit keeps the position
	h := m.Frame(5).handle
	mustRead(t, m, 5)
	assert.Equal(t, h, m.Frame(5).handle)
}

func TestARCAdaptsTarget(t *testing.T) {
	p := NewARCPolicy()
	m := newTestManager(t, NewMemoryDevice(testPageSize), 2, p)

	mustRead(t, m, 1, 2, 1, 3)
	require.True(t, ghost(m, 2))
	assert.Zero(t, p.Target())

	mustRead(t, m, 2)
	assert.Equal(t, 1, p.Target())
	assert.True(t, ghost(m, 1))
	assert.True(t, resident(m, 2))
	assert.True(t, resident(m, 3))
	assert.Equal(t, arcFrequent, p.q.Route(m.Frame(2).handle))
}

func TestTnAdjustsCleanLimit(t *testing.T) {
	dev := NewMemoryDevice(testPageSize)
	p := NewTnPolicy(2, TnConfig{})
	m := newTestManager(t, dev, 4, p)
	require.Equal(t, uint32(2), p.CRLimit())
	require.Equal(t, uint32(2), p.DRLimit())

	mustWrite(t, m, 1, 2)
	mustRead(t, m, 3, 4, 5)
	assert.True(t, ghost(m, 3), "the clean page goes first when no segment is over its limit")

	// A clean ghost hit grows the clean limit, pushing a dirty page out
	mustRead(t, m, 3)
	assert.Equal(t, uint32(3), p.CRLimit())
	assert.True(t, ghost(m, 1))
	assert.Equal(t, uint64(1), dev.WriteCount())

	// A dirty ghost write hit shrinks it by kickN
	mustWrite(t, m, 1)
	assert.Equal(t, uint32(1), p.CRLimit())
	assert.Equal(t, uint32(3), p.DRLimit())
	assert.True(t, ghost(m, 4))
	assert.True(t, m.Frame(1).Dirty())
	assert.Equal(t, tnDirty, p.q.Route(m.Frame(1).handle))
}

func TestTnFlushMigratesToClean(t *testing.T) {
	p := NewTnPolicy(1, TnConfig{})
	m := newTestManager(t, NewMemoryDevice(testPageSize), 4, p)

	mustWrite(t, m, 1, 2)
	require.Equal(t, tnDirty, p.q.Route(m.Frame(1).handle))
	require.NoError(t, m.Flush())

	for _, id := range []uint32{1, 2} {
		assert.Equal(t, tnClean, p.q.Route(m.Frame(id).handle))
	}
	assert.Equal(t, 2, p.q.FrontSize(tnClean))
	assert.Zero(t, p.q.FrontSize(tnDirty))
}

func TestTnSingleSegment(t *testing.T) {
	p := NewTnPolicy(1, TnConfig{SRLimit: 1, SNRLimit: 1, PickOffSRWhenHitInSR: true})
	m := newTestManager(t, NewMemoryDevice(testPageSize), 4, p)

	mustRead(t, m, 1)
	assert.Equal(t, tnSingle, p.q.Route(m.Frame(1).handle))
	mustRead(t, m, 1)
	assert.Equal(t, tnClean, p.q.Route(m.Frame(1).handle))

	mustWrite(t, m, 2)
	mustWrite(t, m, 2)
	assert.Equal(t, tnDirty, p.q.Route(m.Frame(2).handle))

	_, err := NewManager(nil, 4, NewTnPolicy(1, TnConfig{SRLimit: 5}))
	assert.True(t, IsErrorCode(err, ErrCodeInvalidConfig))
}

func TestTnClampsCleanLimit(t *testing.T) {
	p := NewTnPolicy(1, TnConfig{SRLimit: 2})
	newTestManager(t, nil, 8, p)

	p.enlargeCRLimit(100)
	assert.Equal(t, uint32(6), p.CRLimit())
	assert.Zero(t, p.DRLimit())
	p.enlargeCRLimit(-100)
	assert.Zero(t, p.CRLimit())
	assert.Equal(t, uint32(6), p.DRLimit())

	assert.Equal(t, "NPages=8,KickN=1,AdjustDR=0,EnlargeCR=0,SRLimit=2,SNRLimit=0,KickOffSR=0", p.Description())
}

func TestTnSingleLimitNearCapacity(t *testing.T) {
	for _, sr := range []uint32{3, 4} {
		t.Run(fmt.Sprint(sr), func(t *testing.T) {
			p := NewTnPolicy(1, TnConfig{SRLimit: sr, SNRLimit: 2, PickOffSRWhenHitInSR: true})
			m := newTestManager(t, NewMemoryDevice(testPageSize), 4, p)
			require.NoError(t, m.CheckInvariants())
			assert.Equal(t, 4-sr, p.CRLimit())
			assert.Zero(t, p.DRLimit())

			r := rand.New(rand.NewPCG(7, uint64(sr)))
			for range 500 {
				id := uint32(r.IntN(10))
				if r.IntN(3) == 0 {
					mustWrite(t, m, id)
				} else {
					mustRead(t, m, id)
				}
				require.LessOrEqual(t, p.CRLimit(), 4-sr)
				require.LessOrEqual(t, p.DRLimit(), uint32(4))
			}
		})
	}
}

// tnLimitWatch checks the resident segment sizes around every eviction.
type tnLimitWatch struct {
	*TnPolicy
	t         *testing.T
	evictions int
}

func (w *tnLimitWatch) limit(cat int) uint32 {
	switch cat {
	case tnClean:
		return w.CRLimit()
	case tnDirty:
		return w.DRLimit()
	}
	return w.srLimit()
}

func (w *tnLimitWatch) fronts() [tnCategories]uint32 {
	var s [tnCategories]uint32
	for cat := range tnCategories {
		s[cat] = uint32(w.q.FrontSize(cat))
	}
	return s
}

func (w *tnLimitWatch) OnPoolFull() error {
	before := w.fronts()
	over := -1
	for cat := range tnCategories {
		if before[cat] > w.limit(cat) {
			require.Equal(w.t, -1, over, "two segments over their limits: %v", before)
			require.Equal(w.t, w.limit(cat)+1, before[cat], "segment %d before eviction %d", cat, w.evictions)
			over = cat
		}
	}
	if err := w.TnPolicy.OnPoolFull(); err != nil {
		return err
	}

	after := w.fronts()
	for cat := range tnCategories {
		require.LessOrEqual(w.t, after[cat], w.limit(cat), "segment %d after eviction %d", cat, w.evictions)
		if cat == over {
			require.Equal(w.t, before[cat]-1, after[cat], "the over-limit segment gives up the victim")
		}
	}
	w.evictions++
	return nil
}

// Limits stay fixed without ghost hits, and every eviction comes from the one
// segment a miss pushed over its limit.
func TestTnSegmentLimitsOnMisses(t *testing.T) {
	for _, n := range []int{5, 8} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			w := &tnLimitWatch{TnPolicy: NewTnPolicy(3, TnConfig{}), t: t}
			m := newTestManager(t, NewMemoryDevice(testPageSize), n, w)
			cr, dr := w.CRLimit(), w.DRLimit()

			next := uint32(0)
			for range cr {
				mustRead(t, m, next)
				next++
			}
			for range dr {
				mustWrite(t, m, next)
				next++
			}
			require.Zero(t, w.evictions)

			r := rand.New(rand.NewPCG(3, uint64(n)))
			for range 2000 {
				if r.IntN(2) == 0 {
					mustWrite(t, m, next)
				} else {
					mustRead(t, m, next)
				}
				next++
			}
			assert.Equal(t, 2000, w.evictions)
			assert.Equal(t, cr, w.CRLimit())
			assert.Equal(t, dr, w.DRLimit())
		})
	}
}

func TestBlowerAlternatesLists(t *testing.T) {
	run := func(conf BlowerConfig) (*BlowerPolicy, *Manager, *MemoryDevice) {
		dev := NewMemoryDevice(testPageSize)
		p := NewBlowerPolicy(conf)
		m := newTestManager(t, dev, 4, p)
		mustRead(t, m, 1, 2, 3, 4)
		mustWrite(t, m, 5)
		return p, m, dev
	}

	p, m, dev := run(DefaultBlowerConfig())
	assert.True(t, ghost(m, 1), "a non-negative quota scans the read list")
	assert.Equal(t, -1, p.Quota())

	mustRead(t, m, 6)
	assert.True(t, ghost(m, 5), "a negative quota scans the write list")
	assert.Equal(t, 2, p.Quota())
	assert.Equal(t, uint64(1), dev.WriteCount())
	assert.Equal(t, 6, m.Tracked(), "history is never forgotten")

	mustRead(t, m, 1)
	assert.True(t, ghost(m, 2))
	assert.Equal(t, 1, p.Quota())

	p, m, _ = run(BlowerConfig{ScanCredit: 3, ReadWindowStep: 1})
	mustRead(t, m, 6, 1)
	assert.Zero(t, p.Quota(), "a read window hit spends the read step")

	_, err := NewManager(nil, 4, NewBlowerPolicy(BlowerConfig{}))
	assert.True(t, IsErrorCode(err, ErrCodeInvalidConfig))
}

// pageImage is the deterministic content of version v of a page.
func pageImage(id uint32, v int) []byte {
	return bytes.Repeat([]byte{byte(id*31 + uint32(v))}, 64)
}

func TestPoliciesRandomizedVerify(t *testing.T) {
	variants := []struct {
		name string
		args []string
	}{
		{"lru", nil},
		{"cflru", []string{"0.25"}},
		{"lirs", nil},
		{"lirs", []string{"0.3", "0.5"}},
		{"flirs", nil},
		{"flirs", []string{"0.3", "0"}},
		{"2q", nil},
		{"2q", []string{"0.5", "0"}},
		{"arc", nil},
		{"tn", nil},
		{"tn", []string{"true", "true", "2", "2", "true"}},
		{"acar", []string{"false", "true", "1", "0", "false"}},
		{"blower", nil},
		{"blower", []string{"2", "1", "1"}},
	}

	for _, v := range variants {
		t.Run(fmt.Sprintf("%s%v", v.name, v.args), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.WriteCost = 3
			p, err := NewPolicy(v.name, v.args, cfg)
			require.NoError(t, err)
			dev := NewMemoryDevice(64)
			m := newTestManager(t, dev, 8, p)

			versions := map[uint32]int{}
			r := rand.New(rand.NewPCG(42, uint64(len(v.args))))
			for i := 0; i < 3000; i++ {
				// Skewed towards a hot set so every policy sees hits and ghosts
				id := uint32(r.IntN(6))
				if r.IntN(3) == 0 {
					id = uint32(r.IntN(40))
				}

				switch op := r.IntN(10); {
				case op < 3:
					versions[id]++
					require.NoError(t, m.Write(id, pageImage(id, versions[id])))
				case op == 9 && i%50 == 0:
					require.NoError(t, m.Flush())
				default:
					got, err := m.Read(id)
					require.NoError(t, err)
					want := make([]byte, 64)
					if n, ok := versions[id]; ok {
						want = pageImage(id, n)
					}
					require.Equal(t, want, got, "step %d page %d", i, id)
				}
				require.LessOrEqual(t, m.Resident(), 8)
			}

			require.NoError(t, m.Close())
			buf := make([]byte, 64)
			for id, n := range versions {
				require.NoError(t, dev.Read(id, buf))
				assert.Equal(t, pageImage(id, n), buf, "page %d on device", id)
			}
		})
	}
}
