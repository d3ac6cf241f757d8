package engine

import "fmt"

// SamplingStrategy names how the candidate neighbor pool is reduced to at
// most SampleSize sessions before similarity scoring.
type SamplingStrategy string

const (
	SampleCommonItems    SamplingStrategy = "common_items"
	SampleRecent         SamplingStrategy = "recent"
	SampleRandom         SamplingStrategy = "random"
	SampleWeightedEvents SamplingStrategy = "weighted_events"
)

// samplingStrategies is the closed set of implemented sampling strategies.
var samplingStrategies = []SamplingStrategy{
	SampleCommonItems, SampleRecent, SampleRandom, SampleWeightedEvents,
}

// Validate reports ErrUnknownStrategy for values outside the closed set.
func (s SamplingStrategy) Validate() error {
	switch s {
	case SampleCommonItems, SampleRecent, SampleRandom, SampleWeightedEvents:
		return nil
	}
	return fmt.Errorf("%w: sampling strategy %q is not implemented, use one of %v",
		ErrUnknownStrategy, string(s), samplingStrategies)
}

// Settings holds the tunable model parameters. The zero value is not usable;
// start from DefaultSettings and adjust.
type Settings struct {
	// Recommendations is the number of items returned per query.
	Recommendations int `json:"number_of_recommendations" mapstructure:"number_of_recommendations"`

	// Neighbors is the number of closest sessions kept after similarity
	// scoring.
	Neighbors int `json:"number_of_neighbors" mapstructure:"number_of_neighbors"`

	// SamplingStrategy picks how the candidate pool is reduced.
	SamplingStrategy SamplingStrategy `json:"sampling_strategy" mapstructure:"sampling_strategy"`

	// SampleSize caps the candidate pool passed to similarity scoring.
	SampleSize int `json:"sample_size" mapstructure:"sample_size"`

	// WeightingFunc weights query items by session position.
	WeightingFunc SessionWeighting `json:"weighting_func" mapstructure:"weighting_func"`

	// RankingStrategy decays neighbor similarity by the distance of the
	// first shared item from the session end.
	RankingStrategy RankingStrategy `json:"ranking_strategy" mapstructure:"ranking_strategy"`

	// ReturnEventsFromSession keeps items of the query session itself in
	// the recommendation output.
	ReturnEventsFromSession bool `json:"return_events_from_session" mapstructure:"return_events_from_session"`

	// RecommendAny pads short outputs with random catalog items carrying
	// score zero.
	RecommendAny bool `json:"recommend_any" mapstructure:"recommend_any"`

	// RequiredSamplingEvent restricts the candidate pool to sessions whose
	// action sequence contains this label, for example "purchase".
	RequiredSamplingEvent string `json:"required_sampling_event,omitempty" mapstructure:"required_sampling_event"`

	// RequiredEventIndex is the position of the action sequence within raw
	// positional session records. It must be set whenever
	// RequiredSamplingEvent is used.
	RequiredEventIndex *int `json:"required_sampling_event_index,omitempty" mapstructure:"required_sampling_event_index"`

	// EventWeightsIndex is the position of the weight sequence within raw
	// positional session records. It must be set for weighted_events
	// sampling.
	EventWeightsIndex *int `json:"sampling_event_weights_index,omitempty" mapstructure:"sampling_event_weights_index"`
}

// DefaultSettings returns the parameter set used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		Recommendations:         5,
		Neighbors:               10,
		SamplingStrategy:        SampleCommonItems,
		SampleSize:              1000,
		WeightingFunc:           WeightLinear,
		RankingStrategy:         RankLinear,
		ReturnEventsFromSession: true,
		RecommendAny:            false,
	}
}

// Validate checks field ranges, strategy names and companion requirements.
func (s Settings) Validate() error {
	if s.Recommendations < 1 {
		return fmt.Errorf("%w: number_of_recommendations must be a positive integer", ErrInvalidType)
	}
	if s.Neighbors < 1 {
		return fmt.Errorf("%w: number_of_neighbors must be a positive integer", ErrInvalidType)
	}
	if s.SampleSize < 1 {
		return fmt.Errorf("%w: sample_size must be a positive integer", ErrInvalidType)
	}
	if err := s.SamplingStrategy.Validate(); err != nil {
		return err
	}
	if err := s.WeightingFunc.Validate(); err != nil {
		return err
	}
	if err := s.RankingStrategy.Validate(); err != nil {
		return err
	}
	if s.RequiredSamplingEvent != "" && s.RequiredEventIndex == nil {
		return fmt.Errorf("%w: required_sampling_event is set but required_sampling_event_index is not", ErrMissingParameter)
	}
	if s.SamplingStrategy == SampleWeightedEvents && s.EventWeightsIndex == nil {
		return fmt.Errorf("%w: weighted_events sampling requires sampling_event_weights_index", ErrMissingParameter)
	}
	return nil
}

// Overrides carries per-request replacements for individual settings fields.
// Nil fields keep the fitted model's value.
type Overrides struct {
	Recommendations         *int              `json:"number_of_recommendations,omitempty"`
	Neighbors               *int              `json:"number_of_neighbors,omitempty"`
	SamplingStrategy        *SamplingStrategy `json:"sampling_strategy,omitempty"`
	SampleSize              *int              `json:"sample_size,omitempty"`
	WeightingFunc           *SessionWeighting `json:"weighting_func,omitempty"`
	RankingStrategy         *RankingStrategy  `json:"ranking_strategy,omitempty"`
	ReturnEventsFromSession *bool             `json:"return_events_from_session,omitempty"`
	RecommendAny            *bool             `json:"recommend_any,omitempty"`
	RequiredSamplingEvent   *string           `json:"required_sampling_event,omitempty"`
	RequiredEventIndex      *int              `json:"required_sampling_event_index,omitempty"`
	EventWeightsIndex       *int              `json:"sampling_event_weights_index,omitempty"`
}

// apply returns base with every non-nil override field replaced. The
// receiver may be nil, in which case base is returned unchanged.
func (o *Overrides) apply(base Settings) Settings {
	if o == nil {
		return base
	}
	if o.Recommendations != nil {
		base.Recommendations = *o.Recommendations
	}
	if o.Neighbors != nil {
		base.Neighbors = *o.Neighbors
	}
	if o.SamplingStrategy != nil {
		base.SamplingStrategy = *o.SamplingStrategy
	}
	if o.SampleSize != nil {
		base.SampleSize = *o.SampleSize
	}
	if o.WeightingFunc != nil {
		base.WeightingFunc = *o.WeightingFunc
	}
	if o.RankingStrategy != nil {
		base.RankingStrategy = *o.RankingStrategy
	}
	if o.ReturnEventsFromSession != nil {
		base.ReturnEventsFromSession = *o.ReturnEventsFromSession
	}
	if o.RecommendAny != nil {
		base.RecommendAny = *o.RecommendAny
	}
	if o.RequiredSamplingEvent != nil {
		base.RequiredSamplingEvent = *o.RequiredSamplingEvent
	}
	if o.RequiredEventIndex != nil {
		base.RequiredEventIndex = o.RequiredEventIndex
	}
	if o.EventWeightsIndex != nil {
		base.EventWeightsIndex = o.EventWeightsIndex
	}
	return base
}

// empty reports whether no override field is set.
func (o *Overrides) empty() bool {
	if o == nil {
		return true
	}
	return o.Recommendations == nil && o.Neighbors == nil &&
		o.SamplingStrategy == nil && o.SampleSize == nil &&
		o.WeightingFunc == nil && o.RankingStrategy == nil &&
		o.ReturnEventsFromSession == nil && o.RecommendAny == nil &&
		o.RequiredSamplingEvent == nil && o.RequiredEventIndex == nil &&
		o.EventWeightsIndex == nil
}
