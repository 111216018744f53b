package server

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"gopkg.in/yaml.v3"

	"CF_IP_SpeedTest_Go/internal/config"
	"CF_IP_SpeedTest_Go/internal/engine"
	"CF_IP_SpeedTest_Go/internal/locations"
	"CF_IP_SpeedTest_Go/internal/output"
)

//go:embed web
var embeddedFS embed.FS

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins
	},
}

// Start 启动 Web 服务器
func Start(port int, cfgPath, locationsPath string) {
	staticFS, err := fs.Sub(embeddedFS, "web")
	if err != nil {
		log.Fatalf("Failed to create sub filesystem: %v", err)
	}

	http.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))
	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		f, err := staticFS.Open("index.html")
		if err != nil {
			http.Error(w, "index.html not found", http.StatusInternalServerError)
			return
		}
		defer f.Close()

		content, err := io.ReadAll(f)
		if err != nil {
			http.Error(w, "failed to read index.html", http.StatusInternalServerError)
			return
		}
		http.ServeContent(w, r, "index.html", time.Now(), bytes.NewReader(content))
	})

	http.HandleFunc("/api/config", handleConfig(cfgPath))
	http.HandleFunc("/api/locations", handleLocations(locationsPath))
	http.HandleFunc("/ws/run", handleWebSocket(cfgPath, locationsPath))

	addr := fmt.Sprintf("0.0.0.0:%d", port)
	log.Printf("服务器正在启动，请在浏览器中打开 http://%s", addr)

	go openBrowser(fmt.Sprintf("http://%s", addr))

	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("服务器启动失败: %v", err)
	}
}

func handleConfig(cfgPath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case "GET":
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				http.Error(w, "Failed to load config", http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(cfg)
		case "POST":
			var newValues map[string]interface{}
			if err := json.NewDecoder(r.Body).Decode(&newValues); err != nil {
				http.Error(w, "Invalid request body", http.StatusBadRequest)
				return
			}
			if err := saveConfigWithComments(cfgPath, newValues); err != nil {
				http.Error(w, fmt.Sprintf("Failed to save config: %v", err), http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusOK)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

// handleLocations 返回全部 IATA 位置以及去重后的地区标签
func handleLocations(locationsPath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		db, err := locations.LoadFromFile(locationsPath)
		if err != nil {
			http.Error(w, "Failed to load locations", http.StatusInternalServerError)
			return
		}

		type locationData struct {
			Locations []locations.Location `json:"locations"`
			Regions   []string             `json:"regions"`
		}

		seen := make(map[string]bool)
		var regions []string
		for _, loc := range db.All() {
			if loc.Region != "" && !seen[loc.Region] {
				seen[loc.Region] = true
				regions = append(regions, loc.Region)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(locationData{Locations: db.All(), Regions: regions})
	}
}

func handleWebSocket(cfgPath, locationsPath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("WebSocket upgrade failed:", err)
			return
		}

		// 等待客户端发来的初始配置消息
		_, msg, err := conn.ReadMessage()
		if err != nil {
			log.Println("WebSocket read for config failed:", err)
			return
		}

		// 先加载文件中的配置作为基础，再用 WebSocket 发来的数据覆盖，
		// 前端没有提供的字段保留文件中的值
		runConfig, err := config.LoadConfig(cfgPath)
		if err != nil {
			log.Printf("Failed to load base config: %v", err)
			conn.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf("Error: Failed to load base config: %v", err)))
			return
		}
		if err := json.Unmarshal(msg, runConfig); err != nil {
			log.Println("Failed to unmarshal config from WebSocket:", err)
			conn.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf("Error: Invalid config format: %v", err)))
			return
		}
		runConfig.Normalize()

		// 客户端断开时取消
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					log.Printf("Client disconnected: %v", err)
					break
				}
			}
		}()

		type webSocketMessage struct {
			Type    string      `json:"type"` // "log" 或 "result"
			Payload interface{} `json:"payload"`
		}

		// 所有写操作都经由唯一的 writer 协程串行化
		writeChan := make(chan webSocketMessage, 64)
		go func() {
			for msg := range writeChan {
				if err := conn.WriteJSON(msg); err != nil {
					log.Printf("WebSocket write error: %v", err)
					break
				}
			}
		}()

		progressCallback := func(message string) {
			select {
			case <-ctx.Done():
			default:
				writeChan <- webSocketMessage{Type: "log", Payload: message}
			}
		}

		report, err := engine.Run(runConfig, locationsPath, progressCallback)
		if err != nil {
			errMsg := fmt.Sprintf("引擎运行时出错: %v", err)
			progressCallback(errMsg)
			log.Println(errMsg)
		} else {
			select {
			case <-ctx.Done():
			default:
				writeChan <- webSocketMessage{
					Type:    "result",
					Payload: output.ToHumanReadable(report.Best, report.Endpoints),
				}
			}

			if len(report.Results) > 0 && runConfig.SaveResults {
				saveWebResults("web_result.json", "web_result.csv", report, progressCallback)
			}
		}

		progressCallback("--- 任务完成 ---")
		close(writeChan)
		time.Sleep(200 * time.Millisecond) // 给 writer 协程发送最后一条消息的时间
		conn.Close()
	}
}

// saveWebResults 并行写出 JSON/CSV 结果文件，等两路写入都完成后才返回。
// 调用方随后才能关闭进度通道，保证不会向已关闭的通道发送消息。
func saveWebResults(jsonPath, csvPath string, report *engine.Report, progress func(string)) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := output.WriteJSONFile(jsonPath, report.Results, report.Endpoints); err != nil {
			log.Printf("保存 JSON 文件失败: %v", err)
			progress(fmt.Sprintf("错误: 保存 %s 失败。", jsonPath))
		} else {
			progress(fmt.Sprintf("结果已保存到 %s", jsonPath))
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := output.WriteCSVFile(csvPath, report.Results, report.Endpoints); err != nil {
			log.Printf("保存 CSV 文件失败: %v", err)
			progress(fmt.Sprintf("错误: 保存 %s 失败。", csvPath))
		} else {
			progress(fmt.Sprintf("结果已保存到 %s", csvPath))
		}
	}()

	wg.Wait()
}

// saveConfigWithComments 更新 config.yaml 中的值并保留原有注释
func saveConfigWithComments(cfgPath string, newValues map[string]interface{}) error {
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return err
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return err
	}

	// yaml.v3 解析出的是文档节点，取其内容
	docNode := root.Content[0]
	for i := 0; i < len(docNode.Content); i += 2 {
		keyNode := docNode.Content[i]
		valNode := docNode.Content[i+1]
		if newValue, ok := newValues[keyNode.Value]; ok {
			setNodeValue(valNode, newValue)
		}
	}

	out, err := yaml.Marshal(&root)
	if err != nil {
		return err
	}
	return os.WriteFile(cfgPath, out, 0644)
}

// setNodeValue 根据传入的值更新 yaml.Node，处理标量和序列
func setNodeValue(node *yaml.Node, value interface{}) {
	if slice, isSlice := value.([]interface{}); isSlice {
		node.Kind = yaml.SequenceNode
		node.Tag = "!!seq"
		node.Content = []*yaml.Node{}
		for _, item := range slice {
			itemNode := &yaml.Node{}
			setNodeValue(itemNode, item)
			node.Content = append(node.Content, itemNode)
		}
		return
	}

	s := fmt.Sprintf("%v", value)
	node.Value = s
	node.Kind = yaml.ScalarNode

	// 推断标量类型标签
	if s == "true" || s == "false" {
		node.Tag = "!!bool"
	} else if _, err := strToInt(s); err == nil {
		node.Tag = "!!int"
	} else if _, err := strToFloat(s); err == nil {
		node.Tag = "!!float"
	} else {
		node.Tag = "!!str"
	}
}

func strToFloat(s string) (float64, error) {
	var f float64
	return f, json.Unmarshal([]byte(s), &f)
}

func strToInt(s string) (int, error) {
	var i int
	return i, json.Unmarshal([]byte(s), &i)
}

// openBrowser 尝试在默认浏览器中打开 URL
func openBrowser(url string) {
	var err error
	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", url).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		err = exec.Command("open", url).Start()
	default:
		err = fmt.Errorf("unsupported platform")
	}
	if err != nil {
		log.Printf("无法自动打开浏览器: %v\n请手动打开 %s", err, url)
	}
}
