package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/John-Robertt/subtagger/internal/config"
	"github.com/John-Robertt/subtagger/internal/logging"
	"github.com/John-Robertt/subtagger/internal/probe"
	"github.com/John-Robertt/subtagger/internal/tagging"
)

// globalFlags are shared by every command that needs tagging configuration.
// Empty values leave the config file / environment value in place.
type globalFlags struct {
	configPath string
	source     string
	mode       string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	var g globalFlags

	root := &cobra.Command{
		Use:   "subtagger",
		Short: "Tag proxy nodes with AI and streaming unlock capabilities",
		Long: `subtagger reads a probe result table (tags.json) keyed by node name and merges
capability tags such as Chat, NF, YTP or DP into proxy node lists, either as a
structured tag list or as a "[Chat|NF] " display-name prefix.

When the probe table cannot be loaded, node lists pass through unchanged.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "YAML 配置文件路径")
	pf.StringVar(&g.source, "source", "", "探测结果表地址：http(s) URL 或本地文件（覆盖 source_url）")
	pf.StringVar(&g.mode, "mode", "", "标签写入方式：tags/name/both（覆盖 mode）")
	pf.StringVar(&g.logLevel, "log-level", "", "日志级别：debug/info/warn/error（覆盖 log.level）")
	pf.StringVar(&g.logFormat, "log-format", "", "日志格式：json/console（覆盖 log.format）")

	root.AddCommand(
		newTagCmd(&g),
		newResolveCmd(&g),
		newServeCmd(&g),
		newHealthcheckCmd(),
	)
	return root
}

// runtime is everything a command needs to tag a batch.
type runtime struct {
	cfg      config.Config
	logger   *zap.Logger
	source   probe.Source
	resolver *tagging.Resolver
	operator *tagging.Operator
}

func (g *globalFlags) load() (*runtime, error) {
	cfg, err := config.Load(config.Options{
		Path: g.configPath,
		Override: func(c *config.Config) {
			if g.source != "" {
				c.SourceURL = g.source
			}
			if g.mode != "" {
				c.Mode = g.mode
			}
			if g.logLevel != "" {
				c.Log.Level = g.logLevel
			}
			if g.logFormat != "" {
				c.Log.Format = g.logFormat
			}
		},
	})
	if err != nil {
		return nil, err
	}
	return newRuntime(cfg)
}

func newRuntime(cfg config.Config) (*runtime, error) {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	resolver, err := tagging.NewResolver(cfg.ResolverOptions())
	if err != nil {
		return nil, err
	}
	source := probe.NewSource(cfg.SourceURL, cfg.FetchOptions(), logger)
	op, err := tagging.NewOperator(tagging.Options{
		Source:   source,
		Resolver: resolver,
		Mode:     cfg.TagMode(),
		Workers:  cfg.Workers,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	return &runtime{cfg: cfg, logger: logger, source: source, resolver: resolver, operator: op}, nil
}

func (rt *runtime) close() {
	_ = rt.logger.Sync()
}
