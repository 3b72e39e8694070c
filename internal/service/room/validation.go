package room

import (
	"errors"
	"math"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/sharetube/syncstream/internal/domain"
)

var VideoIDRule = []validation.Rule{
	validation.Required,
	validation.Match(regexp.MustCompile("^[A-Za-z0-9_-]{1,64}$")),
}

var PositionRule = []validation.Rule{
	validation.By(isFinite),
	validation.Min(0.0),
}

var UsernameRule = []validation.Rule{
	validation.Length(0, 32),
}

func isFinite(value interface{}) error {
	f, ok := value.(float64)
	if !ok {
		return errors.New("must be a number")
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return errors.New("must be finite")
	}

	return nil
}

func (p HostIntentParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Kind, validation.Required, validation.In(domain.IntentLoad, domain.IntentPlay, domain.IntentPause)),
		validation.Field(&p.VideoID, validation.When(p.Kind == domain.IntentLoad, VideoIDRule...)),
		validation.Field(&p.PositionSeconds, PositionRule...),
	)
}

func (p HeartbeatParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.PositionSeconds, PositionRule...),
	)
}

func (p AddToQueueParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.VideoID, VideoIDRule...),
	)
}
