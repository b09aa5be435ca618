package engine

// Assemble truncates results to limit, preserving order. limit <= 0 keeps everything.
func Assemble(platform Platform, mode OutputFormat, results []FormattedResult, limit int) Batch {
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	if results == nil {
		results = []FormattedResult{}
	}
	return Batch{
		Platform: platform,
		Format:   mode,
		Results:  results,
		Records:  len(results),
	}
}

// AssembleMarkup produces a batch holding one markup document for up to limit records.
func AssembleMarkup(platform Platform, recs []DetailRecord, limit int) Batch {
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return Batch{
		Platform: platform,
		Format:   FormatReducedMarkup,
		Results: []FormattedResult{{
			Format: FormatReducedMarkup,
			Markup: FormatMarkupBatch(platform, recs),
		}},
		Records: len(recs),
	}
}

// Build formats recs in mode and assembles them. Markup mode yields a single document.
// The batch carries the resource ids of the records it represents.
func Build(platform Platform, mode OutputFormat, recs []DetailRecord, limit int) Batch {
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	var b Batch
	if mode == FormatReducedMarkup {
		b = AssembleMarkup(platform, recs, limit)
	} else {
		b = Assemble(platform, mode, FormatAll(recs, mode), limit)
	}
	b.IDs = make([]string, 0, len(recs))
	for _, r := range recs {
		b.IDs = append(b.IDs, r.ResourceID().String())
	}
	return b
}

// Markup returns the combined markup document of a markup batch, or "".
func (b Batch) Markup() string {
	if b.Format != FormatReducedMarkup || len(b.Results) == 0 {
		return ""
	}
	return b.Results[0].Markup
}

// DetailRecords returns the full records of a full-format batch.
func (b Batch) DetailRecords() []DetailRecord {
	var out []DetailRecord
	for _, r := range b.Results {
		if r.Record != nil {
			out = append(out, *r.Record)
		}
	}
	return out
}

// SlimRecords returns the reduced records of a reduced-object batch.
func (b Batch) SlimRecords() []SlimRecord {
	var out []SlimRecord
	for _, r := range b.Results {
		if r.Slim != nil {
			out = append(out, *r.Slim)
		}
	}
	return out
}
