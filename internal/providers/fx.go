package providers

import (
	"github.com/dinehall/dinehall/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	pdf.Module,
)
