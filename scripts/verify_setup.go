package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/shirou/gopsutil/v3/mem"
)

// 用法: go run scripts/verify_setup.go [调试地址]
// 例如 go run scripts/verify_setup.go localhost:9222
func main() {
	fmt.Println("==============================================")
	fmt.Println("  gmreviews 运行环境验证")
	fmt.Println("==============================================")
	fmt.Println()

	allOK := true

	fmt.Printf("✅ Go版本: %s\n", runtime.Version())
	fmt.Printf("✅ 操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)

	// 浏览器
	if path, found := launcher.LookPath(); found {
		fmt.Printf("✅ 找到浏览器: %s\n", path)
	} else {
		fmt.Println("⚠️  未找到本地Chrome/Chromium - 首次运行时会自动下载")
	}

	if len(os.Args) > 1 {
		remote := os.Args[1]
		if ws, err := launcher.ResolveURL(remote); err == nil {
			fmt.Printf("✅ 调试地址可连接: %s\n", ws)
		} else {
			fmt.Printf("❌ 无法连接调试地址 %s: %v\n", remote, err)
			fmt.Println("   启动方法: chrome --remote-debugging-port=9222 --user-data-dir=/tmp/gm-profile")
			allOK = false
		}
	}

	// 内存: 加载上千条评论的页面会占用大量内存
	if vm, err := mem.VirtualMemory(); err == nil {
		availableMB := vm.Available / 1024 / 1024
		if availableMB < 500 {
			fmt.Printf("⚠️  可用内存较少: %d MB (建议至少500MB)\n", availableMB)
		} else {
			fmt.Printf("✅ 可用内存: %d MB\n", availableMB)
		}
	}

	fmt.Println()
	fmt.Println("检查配置文件...")
	for _, file := range []string{"configs/config.yaml", "configs/sources.yaml"} {
		if _, err := os.Stat(file); err == nil {
			fmt.Printf("✅ %s\n", file)
		} else {
			fmt.Printf("⚠️  %s 不存在, 将使用默认值或自动生成模板\n", file)
		}
	}

	fmt.Println()
	fmt.Println("检查输出目录...")
	if err := checkWritable("output"); err != nil {
		fmt.Printf("❌ 输出目录不可写: %v\n", err)
		allOK = false
	} else {
		fmt.Println("✅ output/ 可写")
	}

	fmt.Println()
	fmt.Println("==============================================")
	if allOK {
		fmt.Println("✅ 环境验证通过!")
		fmt.Println()
		fmt.Println("下一步:")
		fmt.Println("  1. 编辑 configs/sources.yaml, 启用要抓取的地点")
		fmt.Println("  2. 运行 'gmreviews validate-config' 检查配置")
		fmt.Println("  3. 运行 'gmreviews' 开始抓取")
		os.Exit(0)
	}
	fmt.Println("❌ 环境验证失败, 请解决上述问题。")
	os.Exit(1)
}

// checkWritable 在目录中创建并删除一个临时文件
func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".verify-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
