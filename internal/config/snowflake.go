package config

import "github.com/bwmarrin/snowflake"

// NewSnowflakeNode builds the id generator for SNOWFLAKE_NODE. Every replica needs its own node.
func NewSnowflakeNode(cfg Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
