package agent

import (
	"github.com/spf13/cobra"
)

func initRemotingFlags(root *cobra.Command) {
	f := root.PersistentFlags()
	srv := defaultCfg.Remoting.Server
	cli := defaultCfg.Remoting.Client

	f.String("remoting.server.addr", srv.Addr, "-> Manager listening address | manager 监听地址")
	f.Duration("remoting.server.idle-timeout", srv.IdleTimeout, "-> Close connections idle longer than this | 服务端空闲超时")
	f.Bool("remoting.server.use-epoll", srv.UseEpoll, "-> Prefer the system epoll transport | 使用系统 epoll")
	f.Bool("remoting.server.compress", srv.Compress, "-> Gzip frame bodies | 帧压缩")
	f.Int("remoting.server.workers", srv.Workers, "-> Message handler goroutines | 消息处理协程数")
	f.Int("remoting.server.max-frame-size", srv.MaxFrameSize, "-> Max frame bytes | 单帧最大字节数")

	f.String("remoting.client.manager-addr", cli.ManagerAddr, "-> Manager address | manager 地址")
	f.Duration("remoting.client.connect-timeout", cli.ConnectTimeout, "-> Dial timeout | 连接超时")
	f.Duration("remoting.client.reconnect-interval", cli.ReconnectInterval, "-> Wait between reconnect attempts | 重连间隔")
	f.Duration("remoting.client.idle-timeout", cli.IdleTimeout, "-> Client idle window | 客户端空闲超时")
	f.Duration("remoting.client.heartbeat-interval", cli.HeartbeatInterval, "-> Heartbeat period | 心跳间隔")
	f.Duration("remoting.client.sync-timeout", cli.SyncTimeout, "-> Default sync call timeout | 同步调用超时")
	f.Bool("remoting.client.compress", cli.Compress, "-> Gzip frame bodies | 帧压缩")
	f.Int("remoting.client.workers", cli.Workers, "-> Message handler goroutines | 消息处理协程数")
	f.Int("remoting.client.max-frame-size", cli.MaxFrameSize, "-> Max frame bytes | 单帧最大字节数")
}
