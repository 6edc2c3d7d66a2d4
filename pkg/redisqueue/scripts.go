package redisqueue

import "github.com/redis/go-redis/v9"

// promoteDelayedScript moves up to ARGV[2] delayed jobs due at or before
// ARGV[1] (unix ms) onto the waiting list.
//
// KEYS[1] delayed, KEYS[2] waiting
var promoteDelayedScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
if #ids > 0 then
	redis.call('RPUSH', KEYS[2], unpack(ids))
	redis.call('ZREM', KEYS[1], unpack(ids))
end
return #ids
`)

// finishScript stores the updated job, drops it from the active list and
// places it in its next structure.
//
// KEYS[1] jobs, KEYS[2] active, KEYS[3] destination
// ARGV[1] id, ARGV[2] encoded job, ARGV[3] "list" or "zset", ARGV[4] score
var finishScript = redis.NewScript(`
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
redis.call('LREM', KEYS[2], 0, ARGV[1])
if ARGV[3] == 'list' then
	redis.call('RPUSH', KEYS[3], ARGV[1])
else
	redis.call('ZADD', KEYS[3], ARGV[4], ARGV[1])
end
return 1
`)

// promoteBatch bounds how many delayed jobs one script call promotes.
const promoteBatch = 1000
