// Package market defines core types shared across subsystems: cached
// catalog records, listing items, the HAL page envelopes the upstream API
// returns, and the ports the crawler, resolvers, and aggregator consume.
package market
