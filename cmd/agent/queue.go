package agent

import (
	"github.com/spf13/cobra"
)

func initQueueFlags(root *cobra.Command) {
	f := root.PersistentFlags()

	f.Duration("queue.poll-timeout", defaultCfg.Queue.PollTimeout, "-> Max wait of a single poll | 单次消费最大等待")
	f.Int("queue.capacity", defaultCfg.Queue.Capacity, "-> First stage capacity, 0 = unbounded | 首级容量，0为不限制")
}

func initCollectorFlags(cmd *cobra.Command) {
	f := cmd.Flags()

	f.String("collector.name", defaultCfg.Collector.Name, "-> Unique collector name | 采集器名称")
	f.Int("collector.workers", defaultCfg.Collector.Workers, "-> Concurrent collection tasks | 采集并发数")
	f.Duration("collector.one-time-timeout", defaultCfg.Collector.OneTimeTimeout, "-> Deadline of a one-time task | 一次性任务超时")
	f.StringSlice("collector.consumers", defaultCfg.Collector.Consumers, "-> Pipeline consumers in stage order | 流水线消费者")
}
