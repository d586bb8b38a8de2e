package commands

import "github.com/hackshare/clustercomm/transport/codec"

// stringTypeKey is the routing key under which transport/codec.GobSerializer
// pre-registers the string type, reused by every demo command that sends or
// handles a bare string request.
const stringTypeKey = codec.StringTypeKey
