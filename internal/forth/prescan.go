package forth

import "fmt"

// prescan walks the token stream once to collect the set of data names
// (var/str/array) and procedure names (`: NAME ... ;`) so the main lowering
// pass can tell a bare name reference apart from an address push versus a
// call, and to decide whether the `*2` scratch variable is needed at all.
func prescan(tokens []string) (dataNames, procNames map[string]bool, needTmpOver bool, err error) {
	dataNames = make(map[string]bool)
	procNames = make(map[string]bool)

	i := 0
	for i < len(tokens) {
		switch tokens[i] {
		case "var":
			if i+1 >= len(tokens) {
				return nil, nil, false, fmt.Errorf("var: missing name at token %d", i)
			}
			dataNames[tokens[i+1]] = true
			i += 2
		case "str":
			if i+2 >= len(tokens) {
				return nil, nil, false, fmt.Errorf("str: missing name or literal at token %d", i)
			}
			dataNames[tokens[i+1]] = true
			i += 3
		case "array":
			if i+2 >= len(tokens) {
				return nil, nil, false, fmt.Errorf("array: missing name or count at token %d", i)
			}
			dataNames[tokens[i+1]] = true
			i += 3
		case ":":
			if i+1 >= len(tokens) {
				return nil, nil, false, fmt.Errorf("': ' missing procedure name at token %d", i)
			}
			procNames[tokens[i+1]] = true
			i += 2
		case "*2":
			needTmpOver = true
			i++
		default:
			i++
		}
	}
	return dataNames, procNames, needTmpOver, nil
}
