package rules

import "time"

// ResolveRelativeDate turns a relative-date descriptor into an absolute
// time. The anchor comes from the descriptor's From field: "now" is the
// evaluation clock, "submission_date" and "policy_start_date" read the
// context metadata and fall back to the clock when the metadata is
// absent. Offsets are applied days first, then months, then years, each
// through the calendar-aware arithmetic of time.Time (a month offset
// from Jan 31 lands in early March, matching AddDate rollover).
func ResolveRelativeDate(rd *RelativeDate, ctx *Context) time.Time {
	anchor := ctx.now()
	if rd == nil {
		return anchor
	}

	switch rd.From {
	case AnchorSubmissionDate:
		if ctx != nil && ctx.Metadata.SubmissionDate != nil {
			anchor = *ctx.Metadata.SubmissionDate
		}
	case AnchorPolicyStartDate:
		if ctx != nil && ctx.Metadata.PolicyStartDate != nil {
			anchor = *ctx.Metadata.PolicyStartDate
		}
	}

	return anchor.
		AddDate(0, 0, rd.Days).
		AddDate(0, rd.Months, 0).
		AddDate(rd.Years, 0, 0)
}
