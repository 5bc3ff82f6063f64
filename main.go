package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/vesiron/library-edge/internal/config"
	"github.com/vesiron/library-edge/internal/logging"
)

// cliOptions 汇总 CLI 解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath string
	command    string
}

const (
	commandServe       = "serve"
	commandCheckConfig = "check-config"
	commandStores      = "stores"
	commandVersion     = "version"
)

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	code := 0
	root := newRootCommand(func(opts cliOptions) int {
		code = run(opts)
		return code
	})
	root.SetArgs(os.Args[1:])
	if err := root.Execute(); err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(code)
}

// newRootCommand 构建命令树，不带子命令时等同于 serve。
func newRootCommand(execute func(cliOptions) int) *cobra.Command {
	var configFlag string

	resolve := func(command string) cliOptions {
		path := os.Getenv("LIBRARY_EDGE_CONFIG")
		if configFlag != "" {
			path = configFlag
		}
		if path == "" {
			path = "config.toml"
		}
		return cliOptions{configPath: path, command: command}
	}
	runAs := func(command string) func(*cobra.Command, []string) {
		return func(*cobra.Command, []string) {
			execute(resolve(command))
		}
	}

	root := &cobra.Command{
		Use:           "library-edge",
		Short:         "Offline-first edge cache for the VESIRON Tech Library PWA",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		Run:           runAs(commandServe),
	}
	root.PersistentFlags().StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 LIBRARY_EDGE_CONFIG 覆盖）")

	root.AddCommand(
		&cobra.Command{Use: commandServe, Short: "安装当前缓存版本并启动边缘服务", Args: cobra.NoArgs, Run: runAs(commandServe)},
		&cobra.Command{Use: commandCheckConfig, Short: "仅校验配置后退出", Args: cobra.NoArgs, Run: runAs(commandCheckConfig)},
		&cobra.Command{Use: commandStores, Short: "列出缓存后端中的全部缓存仓", Args: cobra.NoArgs, Run: runAs(commandStores)},
		&cobra.Command{Use: commandVersion, Short: "显示版本信息", Args: cobra.NoArgs, Run: runAs(commandVersion)},
	)
	return root
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	var parsed cliOptions
	root := newRootCommand(func(opts cliOptions) int {
		parsed = opts
		return 0
	})
	root.SetArgs(args)
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	if err := root.Execute(); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}
	return parsed, nil
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.command == commandVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.command == commandCheckConfig {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["cache_name"] = cfg.CacheName()
		fields["precache"] = len(cfg.Worker.Precache)
		fields["backend"] = cfg.Storage.Backend
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	storage, closeStorage, err := openStorage(cfg)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化缓存后端失败: %v\n", err)
		return 1
	}
	defer closeStorage()

	if opts.command == commandStores {
		if err := printStores(storage, cfg.CacheName()); err != nil {
			fmt.Fprintf(stdErr, "读取缓存仓失败: %v\n", err)
			return 1
		}
		return 0
	}

	if err := serve(opts.configPath, cfg, storage, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// printStores 每行输出一个缓存仓名称，当前版本以 "*" 标记。
func printStores(storage storageLister, current string) error {
	names, err := storage.Names(context.Background())
	if err != nil {
		return err
	}
	sort.Strings(names)
	for _, name := range names {
		marker := " "
		if name == current {
			marker = "*"
		}
		fmt.Fprintf(stdOut, "%s %s\n", marker, name)
	}
	return nil
}
