package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chaos-io/nobg/rembg"
)

const rule = "----------------------------------------"

// Prompter 终端交互：模型菜单和两个 y/n 选项
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func New(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// SelectModel 打印编号菜单，空输入选默认 "1"，非法输入重新询问
// 输入流结束时返回默认模型，ctx 取消时立即返回 ctx.Err()
func (p *Prompter) SelectModel(ctx context.Context) (rembg.Model, error) {
	p.printf("\nSelect Quality Level:\n%s\n", rule)
	for _, m := range rembg.Models {
		p.printf("%s) %s\n", m.Key, m.Description)
	}
	p.printf("%s\n", rule)

	for {
		line, eof, err := p.ask(ctx, fmt.Sprintf("Enter your choice (1-%d) [default: %s]: ", len(rembg.Models), rembg.DefaultModel.Key))
		if err != nil {
			return rembg.Model{}, err
		}
		if line == "" {
			return rembg.DefaultModel, nil
		}
		if m, ok := lookupKey(line); ok {
			return m, nil
		}
		if eof {
			return rembg.DefaultModel, nil
		}
		p.printf("Invalid choice. Please enter 1-%d.\n", len(rembg.Models))
	}
}

// SelectOptions 询问 alpha matting 和仅蒙版
func (p *Prompter) SelectOptions(ctx context.Context) (alphaMatting, maskOnly bool, err error) {
	p.printf("\nProcessing Options:\n%s\n", rule)

	line, _, err := p.ask(ctx, "Enable alpha matting for smoother edges? (y/n) [default: y]: ")
	if err != nil {
		return false, false, err
	}
	alphaMatting = ParseAlphaMatting(line)

	line, _, err = p.ask(ctx, "Save mask only (black/white)? (y/n) [default: n]: ")
	if err != nil {
		return false, false, err
	}
	maskOnly = ParseMaskOnly(line)

	return alphaMatting, maskOnly, nil
}

// ParseAlphaMatting 只有 "n" 表示否，其余都是是
func ParseAlphaMatting(s string) bool {
	return strings.ToLower(strings.TrimSpace(s)) != "n"
}

// ParseMaskOnly 只有 "y" 表示是，其余都是否
func ParseMaskOnly(s string) bool {
	return strings.ToLower(strings.TrimSpace(s)) == "y"
}

// 菜单只认编号，不认模型名
func lookupKey(s string) (rembg.Model, bool) {
	for _, m := range rembg.Models {
		if m.Key == s {
			return m, true
		}
	}
	return rembg.Model{}, false
}

type readResult struct {
	line string
	err  error
}

// ask 在单独的 goroutine 里读一行，终端读阻塞时 Ctrl+C 仍能经由 ctx 返回
// 取消后读 goroutine 留在后台，Prompter 不能再使用
func (p *Prompter) ask(ctx context.Context, question string) (line string, eof bool, err error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	p.printf("%s", question)

	ch := make(chan readResult, 1)
	go func() {
		line, err := p.in.ReadString('\n')
		ch <- readResult{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		p.printf("\n")
		return "", false, ctx.Err()
	case r := <-ch:
		line, err = r.line, r.err
	}

	if errors.Is(err, io.EOF) {
		return strings.TrimSpace(line), true, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), false, nil
}

func (p *Prompter) printf(format string, a ...any) {
	_, _ = fmt.Fprintf(p.out, format, a...)
}
