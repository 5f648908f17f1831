package constraint

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/domain/catalog"
	referrors "github.com/skoriche/Climate-REF4CMIP-sub000/pkg/errors"
)

type recordingLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *recordingLogger) Debug(context.Context, string, ...interface{}) {}

func (l *recordingLogger) Warn(_ context.Context, msg string, _ ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func day(year int, month time.Month, d int) *time.Time {
	t := time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func dated(path string, start, end *time.Time, facets map[string]string) catalog.Record {
	return catalog.NewRecord(path, facets, start, end)
}

func TestContiguousTimerangeRejectsLargeGap(t *testing.T) {
	t.Parallel()

	facets := map[string]string{"instance_id": "tas.a"}
	group := catalog.Records{
		dated("/a1.nc", day(2000, time.January, 1), day(2000, time.December, 31), facets),
		dated("/a2.nc", day(2001, time.February, 9), day(2001, time.December, 31), facets),
	}
	cat := catalog.New(catalog.SourceCMIP6, group)

	_, ok, err := Apply(context.Background(), group, RequireContiguousTimerange{GroupBy: []string{"instance_id"}}, cat)
	require.NoError(t, err)
	assert.False(t, ok, "40 day gap must drop the group")
}

func TestContiguousTimerangeAcceptsSmallGap(t *testing.T) {
	t.Parallel()

	facets := map[string]string{"instance_id": "tas.a"}
	group := catalog.Records{
		dated("/a1.nc", day(2000, time.January, 1), day(2000, time.December, 31), facets),
		dated("/a2.nc", day(2001, time.January, 20), day(2001, time.December, 31), facets),
	}
	cat := catalog.New(catalog.SourceCMIP6, group)

	out, ok, err := Apply(context.Background(), group, RequireContiguousTimerange{GroupBy: []string{"instance_id"}}, cat)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, group, out)
}

func TestContiguousTimerangeUnknownGroupByIsConfigurationError(t *testing.T) {
	t.Parallel()

	group := catalog.Records{dated("/a.nc", day(2000, time.January, 1), day(2000, time.December, 31), nil)}
	cat := catalog.New(catalog.SourceCMIP6, group)

	_, _, err := Apply(context.Background(), group, RequireContiguousTimerange{GroupBy: []string{"nope"}}, cat)
	require.Error(t, err)
	assert.True(t, referrors.IsConfiguration(err))
}

func TestTimerangeBounds(t *testing.T) {
	t.Parallel()

	group := catalog.Records{
		dated("/a1.nc", day(1850, time.January, 1), day(1949, time.December, 31), nil),
		dated("/a2.nc", day(1950, time.January, 1), day(2014, time.December, 31), nil),
	}
	cat := catalog.New(catalog.SourceCMIP6, group)
	ctx := context.Background()

	start, end := catalog.NewPartialTime(1850), catalog.NewPartialTime(2014)
	_, ok, err := Apply(ctx, group, RequireTimerange{Start: &start, End: &end}, cat)
	require.NoError(t, err)
	assert.True(t, ok, "year-only bounds compare on year")

	early := catalog.NewPartialTime(1849, 12)
	_, ok, err = Apply(ctx, group, RequireTimerange{Start: &early}, cat)
	require.NoError(t, err)
	assert.False(t, ok)

	late := catalog.NewPartialTime(2015)
	_, ok, err = Apply(ctx, group, RequireTimerange{End: &late}, cat)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTimerangeAlsoRequiresContiguity(t *testing.T) {
	t.Parallel()

	group := catalog.Records{
		dated("/a1.nc", day(1850, time.January, 1), day(1899, time.December, 31), nil),
		dated("/a2.nc", day(1950, time.January, 1), day(2014, time.December, 31), nil),
	}
	cat := catalog.New(catalog.SourceCMIP6, group)
	start := catalog.NewPartialTime(1850)

	_, ok, err := Apply(context.Background(), group, RequireTimerange{Start: &start}, cat)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTimerangeWithoutBoundsStillChecksContiguity(t *testing.T) {
	t.Parallel()

	facets := map[string]string{"instance_id": "tas.a"}
	group := catalog.Records{
		dated("/a1.nc", day(2000, time.January, 1), day(2000, time.December, 31), facets),
		dated("/a2.nc", day(2002, time.January, 1), day(2002, time.December, 31), facets),
	}
	cat := catalog.New(catalog.SourceCMIP6, group)
	ctx := context.Background()

	_, ok, err := Apply(ctx, group, RequireTimerange{GroupBy: []string{"instance_id"}}, cat)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = Apply(ctx, group, RequireTimerange{GroupBy: []string{"no_such_facet"}}, cat)
	require.Error(t, err)
	assert.True(t, referrors.IsConfiguration(err))

	contiguousGroup := group[:1]
	_, ok, err = Apply(ctx, contiguousGroup, RequireTimerange{GroupBy: []string{"instance_id"}}, cat)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOverlappingTimerange(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	overlapping := catalog.Records{
		dated("/tas.nc", day(2000, time.January, 1), day(2010, time.January, 1), map[string]string{"variable_id": "tas"}),
		dated("/pr.nc", day(2005, time.January, 1), day(2015, time.January, 1), map[string]string{"variable_id": "pr"}),
	}
	cat := catalog.New(catalog.SourceCMIP6, overlapping)
	c := RequireOverlappingTimerange{GroupBy: []string{"variable_id"}}

	_, ok, err := Apply(ctx, overlapping, c, cat)
	require.NoError(t, err)
	assert.True(t, ok)

	disjoint := catalog.Records{
		dated("/tas.nc", day(2000, time.January, 1), day(2004, time.January, 1), map[string]string{"variable_id": "tas"}),
		dated("/pr.nc", day(2005, time.January, 1), day(2015, time.January, 1), map[string]string{"variable_id": "pr"}),
	}
	_, ok, err = Apply(ctx, disjoint, c, catalog.New(catalog.SourceCMIP6, disjoint))
	require.NoError(t, err)
	assert.False(t, ok)

	single := disjoint[:1]
	_, ok, err = Apply(ctx, single, c, catalog.New(catalog.SourceCMIP6, single))
	require.NoError(t, err)
	assert.True(t, ok, "fewer than two dated records always overlap")
}

func TestRequireFacetsRemovesFailingPartitions(t *testing.T) {
	t.Parallel()

	rec := func(path, source, variable string) catalog.Record {
		return catalog.NewRecord(path, map[string]string{"source_id": source, "variable_id": variable}, nil, nil)
	}
	group := catalog.Records{
		rec("/a_tas.nc", "A", "tas"),
		rec("/a_pr.nc", "A", "pr"),
		rec("/b_tas.nc", "B", "tas"),
	}
	cat := catalog.New(catalog.SourceCMIP6, group)

	all := RequireFacets{Dimension: "variable_id", Values: []string{"tas", "pr"}, GroupBy: []string{"source_id"}}
	out, ok, err := Apply(context.Background(), group, all, cat)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"A"}, out.Unique("source_id"))

	anyOf := RequireFacets{Dimension: "variable_id", Values: []string{"pr", "rsut"}, Operator: OperatorAny}
	out, ok, err = Apply(context.Background(), group, anyOf, cat)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, out, 3)

	none := RequireFacets{Dimension: "variable_id", Values: []string{"rsut"}}
	_, ok, err = Apply(context.Background(), group, none, cat)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = Apply(context.Background(), group, RequireFacets{Dimension: "model", Values: []string{"x"}}, cat)
	assert.True(t, referrors.IsConfiguration(err))
}

func TestRequireFacetsDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	group := catalog.Records{
		catalog.NewRecord("/b.nc", map[string]string{"variable_id": "tas"}, nil, nil),
		catalog.NewRecord("/a.nc", map[string]string{"variable_id": "tas"}, nil, nil),
	}
	before := append(catalog.Records(nil), group...)
	cat := catalog.New(catalog.SourceCMIP6, group)

	_, _, err := Apply(context.Background(), group, RequireFacets{Dimension: "variable_id", Values: []string{"tas"}}, cat)
	require.NoError(t, err)
	assert.Equal(t, before, group)
}

func TestSupplementaryPicksBestOptionalMatch(t *testing.T) {
	t.Parallel()

	tas := catalog.NewRecord("/tas.nc", map[string]string{
		"variable_id": "tas", "source_id": "X", "grid_label": "gn", "member_id": "r1i1p1f1",
	}, nil, nil)
	areaR1 := catalog.NewRecord("/areacella_r1.nc", map[string]string{
		"variable_id": "areacella", "source_id": "X", "grid_label": "gn", "member_id": "r1i1p1f1",
	}, nil, nil)
	areaR2 := catalog.NewRecord("/areacella_r2.nc", map[string]string{
		"variable_id": "areacella", "source_id": "X", "grid_label": "gn", "member_id": "r2i1p1f1",
	}, nil, nil)
	cat := catalog.New(catalog.SourceCMIP6, []catalog.Record{tas, areaR1, areaR2})

	c := AddSupplementaryDataset{
		SupplementaryFacets:    map[string][]string{"variable_id": {"areacella"}},
		MatchingFacets:         []string{"source_id", "grid_label"},
		OptionalMatchingFacets: []string{"member_id"},
	}
	out, ok, err := Apply(context.Background(), catalog.Records{tas}, c, cat)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, out, 2)
	assert.ElementsMatch(t, []string{"/areacella_r1.nc", "/tas.nc"}, []string{out[0].Path, out[1].Path})
}

func TestSupplementaryTieBreaksOnVersion(t *testing.T) {
	t.Parallel()

	tas := catalog.NewRecord("/tas.nc", map[string]string{"variable_id": "tas", "source_id": "X", "grid_label": "gn"}, nil, nil)
	older := catalog.NewRecord("/areacella_v9.nc", map[string]string{
		"variable_id": "areacella", "source_id": "X", "grid_label": "gn", "version": "v9",
	}, nil, nil)
	newer := catalog.NewRecord("/areacella_v20200101.nc", map[string]string{
		"variable_id": "areacella", "source_id": "X", "grid_label": "gn", "version": "v20200101",
	}, nil, nil)
	cat := catalog.New(catalog.SourceCMIP6, []catalog.Record{tas, older, newer})

	c := FromDefaults("areacella", catalog.SourceObs4MIPs)
	out, ok, err := Apply(context.Background(), catalog.Records{tas}, c, cat)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, out.Unique(catalog.FacetPath), "/areacella_v20200101.nc")
	assert.NotContains(t, out.Unique(catalog.FacetPath), "/areacella_v9.nc")
}

func TestSupplementaryTieWithoutVersionWarns(t *testing.T) {
	t.Parallel()

	tas := catalog.NewRecord("/tas.nc", map[string]string{"variable_id": "tas", "source_id": "X", "grid_label": "gn"}, nil, nil)
	a := catalog.NewRecord("/areacella_a.nc", map[string]string{"variable_id": "areacella", "source_id": "X", "grid_label": "gn"}, nil, nil)
	b := catalog.NewRecord("/areacella_b.nc", map[string]string{"variable_id": "areacella", "source_id": "X", "grid_label": "gn"}, nil, nil)
	cat := catalog.New(catalog.SourceCMIP6, []catalog.Record{tas, b, a})

	logger := &recordingLogger{}
	ctx := WithLogger(context.Background(), logger)

	out, ok, err := Apply(ctx, catalog.Records{tas}, FromDefaults("areacella", catalog.SourceObs4MIPs), cat)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, out.Unique(catalog.FacetPath), "/areacella_a.nc")
	assert.Len(t, logger.warns, 1)
}

func TestSupplementaryExpandsWholeInstance(t *testing.T) {
	t.Parallel()

	tas := catalog.NewRecord("/tas.nc", map[string]string{"variable_id": "tas", "source_id": "X", "grid_label": "gn"}, nil, nil)
	fixed := map[string]string{"variable_id": "sftlf", "source_id": "X", "grid_label": "gn", "instance_id": "sftlf.X.gn"}
	part1 := catalog.NewRecord("/sftlf_1.nc", fixed, nil, nil)
	part2 := catalog.NewRecord("/sftlf_2.nc", fixed, nil, nil)
	cat := catalog.New(catalog.SourceCMIP6, []catalog.Record{tas, part1, part2})

	out, ok, err := Apply(context.Background(), catalog.Records{tas}, FromDefaults("sftlf", catalog.SourceObs4MIPs), cat)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, out, 3)
}

func TestSupplementaryMissingIsNotAnError(t *testing.T) {
	t.Parallel()

	tas := catalog.NewRecord("/tas.nc", map[string]string{"variable_id": "tas", "source_id": "X", "grid_label": "gn"}, nil, nil)
	cat := catalog.New(catalog.SourceCMIP6, []catalog.Record{tas})

	out, ok, err := Apply(context.Background(), catalog.Records{tas}, FromDefaults("areacella", catalog.SourceCMIP6), cat)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, catalog.Records{tas}, out)
}

func TestSelectParentExperiment(t *testing.T) {
	t.Parallel()

	child := catalog.NewRecord("/ssp.nc", map[string]string{
		"experiment_id": "ssp126", "parent_experiment_id": "historical", "source_id": "X", "variable_id": "tas",
	}, nil, nil)
	parent := catalog.NewRecord("/hist.nc", map[string]string{
		"experiment_id": "historical", "parent_experiment_id": "piControl", "source_id": "X", "variable_id": "tas",
	}, nil, nil)
	other := catalog.NewRecord("/hist_y.nc", map[string]string{
		"experiment_id": "historical", "parent_experiment_id": "piControl", "source_id": "Y", "variable_id": "tas",
	}, nil, nil)

	cat := catalog.New(catalog.SourceCMIP6, []catalog.Record{child, parent, other})
	out, ok, err := Apply(context.Background(), catalog.Records{child}, SelectParentExperiment{}, cat)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"/hist.nc", "/ssp.nc"}, out.Unique(catalog.FacetPath))

	orphanCat := catalog.New(catalog.SourceCMIP6, []catalog.Record{child})
	_, ok, err = Apply(context.Background(), catalog.Records{child}, SelectParentExperiment{}, orphanCat)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidatorsAreMonotonic(t *testing.T) {
	t.Parallel()

	// A record that opens a gap turns a passing group into a rejected one.
	base := catalog.Records{
		dated("/a.nc", day(2000, time.January, 1), day(2000, time.December, 31), nil),
	}
	cat := catalog.New(catalog.SourceCMIP6, base)
	c := RequireContiguousTimerange{}

	_, ok, err := Apply(context.Background(), base, c, cat)
	require.NoError(t, err)
	require.True(t, ok)

	extended := append(append(catalog.Records(nil), base...),
		dated("/b.nc", day(2003, time.January, 1), day(2003, time.December, 31), nil))
	_, ok, err = Apply(context.Background(), extended, c, catalog.New(catalog.SourceCMIP6, extended))
	require.NoError(t, err)
	assert.False(t, ok)
}
