package operations

import (
	"context"

	"github.com/kebairia/zipbackup/internal/command"
	"github.com/kebairia/zipbackup/internal/config"
)

// setCompressionLevel changes the tier used by later archives.
func (op *Operator) setCompressionLevel(_ context.Context, src command.Source, args command.Args) error {
	tier, err := config.ParseTier(args.String("level"))
	if err != nil {
		src.Reply("Invalid compression level, valid values: speed (fastest), best (smallest)")
		return err
	}
	if _, err := op.update(src, func(c *config.Config) error {
		c.CompressionLevel = tier
		return nil
	}); err != nil {
		return err
	}
	src.Reply("Compression level set to " + tier.Describe())
	return nil
}
