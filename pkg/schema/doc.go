// Package schema describes the shape of structured values exchanged with
// capabilities: tool arguments and structured model output.
//
// A Schema maps field names to types. The same Schema validates decoded
// arguments at run time and exports itself as JSON Schema so it can be
// advertised to a language model:
//
//	args := schema.Schema{
//	    "query": schema.Describe(schema.String(), "search terms"),
//	    "limit": schema.Optional(schema.Int()),
//	}
//
//	if err := schema.Validate(args, call.Args); err != nil {
//	    // report the error back to the model as data
//	}
//
//	params := schema.JSONSchema(args) // {"type":"object","properties":...}
//
// Router decisions use Enum to close the set of acceptable answers:
//
//	route := schema.Schema{"next": schema.Enum("researcher", "writer", "FINISH")}
//
// Schemas can also be parsed from type strings ("string", "int", "[string]",
// "string?" for optional fields) which is how they are read from configuration.
package schema
