package constraint

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/domain/catalog"
)

// MaxContiguousGap is the largest gap tolerated between the end of one file and
// the start of the next.
const MaxContiguousGap = 31*24*time.Hour + time.Hour

// RequireTimerange requires every sub-group to cover [Start, End]. Only the
// specified fields of Start and End are compared. Sub-groups must also be
// contiguous.
type RequireTimerange struct {
	GroupBy []string
	Start   *catalog.PartialTime
	End     *catalog.PartialTime
}

func (RequireTimerange) isConstraint() {}

func (c RequireTimerange) String() string {
	var start, end string
	if c.Start != nil {
		start = c.Start.String()
	}
	if c.End != nil {
		end = c.End.String()
	}
	return fmt.Sprintf("RequireTimerange(%s..%s by %s)", start, end, strings.Join(c.GroupBy, ","))
}

// Validate implements Validator.
func (c RequireTimerange) Validate(ctx context.Context, group catalog.Records, cat *catalog.DataCatalog) (bool, error) {
	if err := cat.CheckFacets("constraints.require_timerange.group_by", c.GroupBy...); err != nil {
		return false, err
	}
	for _, part := range subgroups(group, c.GroupBy) {
		minStart, maxEnd, ok := bounds(part)
		if !ok {
			continue
		}
		if c.Start != nil && c.Start.Less(minStart) {
			LoggerFrom(ctx).Debug(ctx, "timerange starts too late", "required", c.Start.String(), "start", minStart)
			return false, nil
		}
		if c.End != nil && c.End.Greater(maxEnd) {
			LoggerFrom(ctx).Debug(ctx, "timerange ends too early", "required", c.End.String(), "end", maxEnd)
			return false, nil
		}
		if !contiguous(ctx, part) {
			return false, nil
		}
	}
	return true, nil
}

// RequireContiguousTimerange rejects a group when any sub-group has a gap larger
// than MaxContiguousGap between consecutive files.
type RequireContiguousTimerange struct {
	GroupBy []string
}

func (RequireContiguousTimerange) isConstraint() {}

func (c RequireContiguousTimerange) String() string {
	return "RequireContiguousTimerange(by " + strings.Join(c.GroupBy, ",") + ")"
}

// Validate implements Validator.
func (c RequireContiguousTimerange) Validate(ctx context.Context, group catalog.Records, cat *catalog.DataCatalog) (bool, error) {
	if err := cat.CheckFacets("constraints.require_contiguous_timerange.group_by", c.GroupBy...); err != nil {
		return false, err
	}
	for _, part := range subgroups(group, c.GroupBy) {
		if !contiguous(ctx, part) {
			return false, nil
		}
	}
	return true, nil
}

// RequireOverlappingTimerange requires the time spans of all sub-groups to share
// a common interval.
type RequireOverlappingTimerange struct {
	GroupBy []string
}

func (RequireOverlappingTimerange) isConstraint() {}

func (c RequireOverlappingTimerange) String() string {
	return "RequireOverlappingTimerange(by " + strings.Join(c.GroupBy, ",") + ")"
}

// Validate implements Validator.
func (c RequireOverlappingTimerange) Validate(ctx context.Context, group catalog.Records, cat *catalog.DataCatalog) (bool, error) {
	if err := cat.CheckFacets("constraints.require_overlapping_timerange.group_by", c.GroupBy...); err != nil {
		return false, err
	}
	if len(group.Dated()) < 2 {
		return true, nil
	}

	var latestStart, earliestEnd time.Time
	first := true
	for _, part := range subgroups(group, c.GroupBy) {
		minStart, maxEnd, ok := bounds(part)
		if !ok {
			continue
		}
		if first || minStart.After(latestStart) {
			latestStart = minStart
		}
		if first || maxEnd.Before(earliestEnd) {
			earliestEnd = maxEnd
		}
		first = false
	}
	if first {
		return true, nil
	}
	if !latestStart.Before(earliestEnd) {
		LoggerFrom(ctx).Debug(ctx, "timeranges do not overlap", "latest_start", latestStart, "earliest_end", earliestEnd)
		return false, nil
	}
	return true, nil
}

// bounds returns the earliest start and latest end over the dated records.
func bounds(records catalog.Records) (time.Time, time.Time, bool) {
	dated := records.Dated()
	if len(dated) == 0 {
		return time.Time{}, time.Time{}, false
	}
	minStart, maxEnd := *dated[0].StartTime, *dated[0].EndTime
	for _, r := range dated[1:] {
		if r.StartTime.Before(minStart) {
			minStart = *r.StartTime
		}
		if r.EndTime.After(maxEnd) {
			maxEnd = *r.EndTime
		}
	}
	return minStart, maxEnd, true
}

func contiguous(ctx context.Context, records catalog.Records) bool {
	dated := append(catalog.Records(nil), records.Dated()...)
	if len(dated) < 2 {
		return true
	}
	sort.SliceStable(dated, func(i, j int) bool { return dated[i].StartTime.Before(*dated[j].StartTime) })
	for i := 1; i < len(dated); i++ {
		gap := dated[i].StartTime.Sub(*dated[i-1].EndTime)
		if gap > MaxContiguousGap {
			LoggerFrom(ctx).Debug(ctx, "timerange has a gap",
				"after", dated[i-1].Path, "before", dated[i].Path, "gap", gap.String())
			return false
		}
	}
	return true
}
