// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

/*
Package cel compiles user expressions written in CEL against typed Go input
records and produces typed results.

The engine provides a lazily built, thread-safe environment per input type,
structured parse and type-check errors, a Tree view of checked expressions for
safety validation, and safeguards against denial-of-service via configurable
expression length and runtime cost limits.

# Inputs

Each exported field of the input struct becomes a top-level variable. Field
names come from the `cel` struct tag, falling back to the Go field name:

	type Order struct {
	    DueDate  time.Time `cel:"dueDate"`
	    TotalDue float64   `cel:"totalDue"`
	}

	engine := cel.NewEngine()
	parsed, err := engine.Parse(`dueDate < today && totalDue > 1000`, reflect.TypeFor[Order]())
	if err != nil {
	    // handle compilation error
	}

	program, err := engine.Compile(parsed, reflect.TypeFor[bool]())
	result, err := program.Eval(Order{DueDate: yesterday, TotalDue: 1200})
	// result == true

The ambient variables now and today are timestamps taken from the engine's
clock at evaluation time. A field with the same name shadows them.

Nil pointers, at any depth, read as null, so `customer.referrer != null` is
false for a nil Referrer. Every exported field must have a supported type;
otherwise Parse returns ErrInvalidSchema.

# Safety

A *Parsed expression implements safety.Tree. Every node is classified and
resolved to its candidate symbols: input fields are owned by the input type,
field reads by the type of their operand, member functions by their receiver,
namespaced functions such as os.getenv by their namespace, and other global
functions by their own name. Variables introduced by comprehensions such as
all, exists, map and filter are reported as lambda locals.

# Error Handling

Compilation errors are returned as structured types with location information:

	_, err := engine.Parse(`totalDue >`, reflect.TypeFor[Order]())
	var parseErr *cel.ParseError
	if errors.As(err, &parseErr) {
	    fmt.Println(parseErr.Errors) // line/column/message details
	}

	_, err = engine.Parse(`undefined_var == "test"`, reflect.TypeFor[Order]())
	var checkErr *cel.CheckError
	if errors.As(err, &checkErr) {
	    fmt.Println(checkErr.AsJSON()) // structured JSON error details
	}

A result type that cannot be converted to the requested output type is a
CheckError of kind ErrKindOutput. All compilation failures wrap
ErrExpressionCheck; evaluation failures wrap ErrEvaluation.

# DoS Protection

The engine includes configurable safeguards against denial-of-service:

	engine := cel.NewEngine(opts...).
	    WithMaxExpressionLength(5000). // reject overly long expressions
	    WithCostLimit(500000)          // limit runtime evaluation cost

# Concurrency

Configure the engine before first use. After that the Engine, Parsed and
Program types are safe for concurrent use.
*/
package cel
