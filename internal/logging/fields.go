package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// DownloadFields 提供 url/key 字段，供缓存协议的每一步日志复用。
func DownloadFields(action, rawURL, key string) logrus.Fields {
	return logrus.Fields{
		"action": action,
		"url":    rawURL,
		"key":    key,
	}
}

// IndexFields 提供协议分区与根目录字段，供索引扫描日志复用。
func IndexFields(action, schema, root string) logrus.Fields {
	return logrus.Fields{
		"action": action,
		"schema": schema,
		"root":   root,
	}
}
