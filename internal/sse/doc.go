// package sse decodes Server-Sent Events streams.
//
// [Decode] turns a byte stream into [Event] values delivered to a [Handler]. Frames are
// terminated by blank lines; data payloads must be JSON. [Client] opens streaming GET and POST
// requests and feeds their bodies to [Decode].
package sse
