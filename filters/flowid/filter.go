package flowid

import (
	"net/http"

	"github.com/rgwgateway/rgw/filters"
)

const (
	Name    = "flow-id"
	Version = "1.0.0"

	HeaderName = "X-Flow-Id"

	GeneratorStandard = "standard"
	GeneratorUUID     = "uuid"
	GeneratorULID     = "ulid"
)

type config struct {
	Reuse     bool   `json:"reuse"`
	Generator string `json:"generator"`
	Length    int    `json:"length"`
	Response  bool   `json:"response"`
}

type filter struct {
	reuse     bool
	response  bool
	generator Generator
}

// New creates an unconfigured flow-id filter.
func New() filters.Configurable {
	return &filter{}
}

func newGenerator(c config) (Generator, error) {
	switch c.Generator {
	case "", GeneratorStandard:
		return NewStandardGenerator(c.Length)
	case GeneratorUUID:
		return NewUUIDGenerator(), nil
	case GeneratorULID:
		return NewULIDGenerator(), nil
	default:
		return nil, filters.InvalidConfigf("unknown flow id generator: %q", c.Generator)
	}
}

func (f *filter) Configure(raw []byte) error {
	c := config{Generator: GeneratorStandard, Length: defaultLen}
	if err := filters.DecodeConfig(raw, &c); err != nil {
		return err
	}

	g, err := newGenerator(c)
	if err == ErrInvalidLen {
		return filters.InvalidConfigf("%v", err)
	} else if err != nil {
		return err
	}

	f.reuse = c.Reuse
	f.response = c.Response
	f.generator = g
	return nil
}

func (f *filter) Filter(ctx filters.FilterContext, next filters.Chain) error {
	r := ctx.Request()
	flowId := r.Header.Get(HeaderName)
	if !f.reuse || !f.generator.IsValid(flowId) {
		var err error
		flowId, err = f.generator.Generate()
		if err != nil {
			ctx.Logger().Errorf("failed to generate flow id: %v", err)
			return filters.Status(http.StatusInternalServerError, err)
		}

		r.Header.Set(HeaderName, flowId)
	}

	ctx.StateBag()[filters.FlowIdKey] = flowId
	if f.response {
		ctx.ResponseWriter().Header().Set(HeaderName, flowId)
	}

	return next.Next(ctx)
}
