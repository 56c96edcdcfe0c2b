package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/John-Robertt/subtagger/internal/fetch"
	"github.com/John-Robertt/subtagger/internal/nodes"
)

type tagFlags struct {
	in       string
	out      string
	format   string
	platform string
}

func newTagCmd(g *globalFlags) *cobra.Command {
	var f tagFlags

	cmd := &cobra.Command{
		Use:   "tag",
		Short: "Tag a node list (Clash YAML or JSON) and write it back out",
		Example: `  subtagger tag --source https://probe.example.com/tags.json --in clash.yaml --out tagged.yaml
  curl -s https://sub.example.com/clash | subtagger tag -c subtagger.yaml --in - --mode both`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := g.load()
			if err != nil {
				return err
			}
			defer rt.close()
			return runTag(cmd.Context(), rt, f, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.in, "in", "i", "", `节点列表：文件路径、http(s) URL，或 "-" 表示标准输入`)
	fl.StringVarP(&f.out, "out", "o", "-", `输出文件，"-" 表示标准输出`)
	fl.StringVarP(&f.format, "format", "f", "", "输出格式：clash/json（默认与输入一致）")
	fl.StringVar(&f.platform, "platform", "", "调用方平台名称，仅记录到日志")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}

func runTag(ctx context.Context, rt *runtime, f tagFlags, stdin io.Reader, stdout io.Writer) error {
	text, err := readNodeList(ctx, f.in, rt.cfg.FetchTimeout, stdin)
	if err != nil {
		return err
	}
	doc, err := nodes.Parse(text)
	if err != nil {
		return err
	}

	format := doc.Source()
	if strings.TrimSpace(f.format) != "" {
		if format, err = nodes.ParseFormat(f.format); err != nil {
			return err
		}
	}

	out, rep := rt.operator.Run(ctx, doc.Nodes, f.platform)
	doc.Nodes = out

	body, err := doc.Render(format)
	if err != nil {
		return err
	}
	if err := writeOutput(f.out, body, stdout); err != nil {
		return err
	}

	rt.logger.Debug("node list written",
		zap.String("batch_id", rep.BatchID),
		zap.String("out", f.out),
		zap.Stringer("format", format),
	)
	return nil
}

func readNodeList(ctx context.Context, in string, timeout time.Duration, stdin io.Reader) (string, error) {
	switch {
	case in == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	case strings.HasPrefix(in, "http://") || strings.HasPrefix(in, "https://"):
		return fetch.FetchTextWithOptions(ctx, fetch.KindNodeList, in, fetch.Options{Timeout: timeout})
	default:
		b, err := os.ReadFile(in)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}

func writeOutput(path string, body []byte, stdout io.Writer) error {
	if path == "" || path == "-" {
		_, err := stdout.Write(body)
		return err
	}
	return os.WriteFile(path, body, 0o644)
}
