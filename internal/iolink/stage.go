package iolink

import (
	"context"
	"log/slog"

	"github.com/openepi/sentinel/pkg/coder"
	"github.com/openepi/sentinel/pkg/config"
	"github.com/openepi/sentinel/pkg/pipeline"
)

// CodingStage links and codes each admitted record: to-links attach
// related rows, from-links rehydrate candidates when a to-form record
// arrives late, and the coder turns every candidate into coded records
// staged on the chunk.
type CodingStage struct {
	country  *config.CountryConfig
	resolver *Resolver
	coder    *coder.Coder

	// typesByForm lists the data-types whose main form each form is.
	typesByForm map[string][]string
}

// NewCodingStage wires the stage.
func NewCodingStage(cc *config.CountryConfig, resolver *Resolver, cd *coder.Coder) *CodingStage {
	byForm := make(map[string][]string)
	for _, dt := range cc.DataTypes {
		byForm[dt.Form] = append(byForm[dt.Form], dt.Name)
	}
	return &CodingStage{
		country:     cc,
		resolver:    resolver,
		coder:       cd,
		typesByForm: byForm,
	}
}

// Name implements pipeline.Stage.
func (s *CodingStage) Name() string { return "link_and_code" }

// Run codes every record. Items pass through unchanged so the alert
// detector still sees the chunk's records.
func (s *CodingStage) Run(
	ctx context.Context,
	chunk *pipeline.Chunk,
	items []pipeline.Item,
) ([]pipeline.Item, error) {
	for _, it := range items {
		var candidates []coder.Linked

		for _, typ := range s.typesByForm[it.Form] {
			linkData, err := s.resolver.ToLinks(ctx, typ, it.Record)
			if err != nil {
				return nil, err
			}
			candidates = append(candidates, coder.Linked{
				Type:     typ,
				Raw:      it.Record,
				LinkData: linkData,
			})
		}

		rehydrated, err := s.resolver.FromLinks(ctx, it.Form, it.Record)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, rehydrated...)

		for _, cand := range candidates {
			res, err := s.coder.Code(cand)
			if err != nil {
				return nil, err
			}
			for _, e := range res.EvalErrors {
				slog.Warn("rule evaluation skipped", "uuid", cand.Raw.UUID, "error", e)
			}
			for _, d := range res.Coded {
				chunk.AddCoded(d)
			}
			for _, d := range res.Disregarded {
				chunk.AddDisregarded(d)
			}
		}
	}
	return items, nil
}
