package cluster

import "github.com/danielpatrickdp/adaptive-state/moment-engine/internal/mixture"

type mixtureComponent = mixture.Component
